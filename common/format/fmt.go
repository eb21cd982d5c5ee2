package format

import (
	"strconv"
	"strings"
)

type Stringer interface {
	String() string
}

func ToString(messages ...any) string {
	var output strings.Builder
	for _, rawMessage := range messages {
		switch message := rawMessage.(type) {
		case string:
			output.WriteString(message)
		case bool:
			output.WriteString(strconv.FormatBool(message))
		case uint:
			output.WriteString(strconv.FormatUint(uint64(message), 10))
		case uint16:
			output.WriteString(strconv.FormatUint(uint64(message), 10))
		case uint32:
			output.WriteString(strconv.FormatUint(uint64(message), 10))
		case uint64:
			output.WriteString(strconv.FormatUint(message, 10))
		case int:
			output.WriteString(strconv.Itoa(message))
		case int32:
			output.WriteString(strconv.FormatInt(int64(message), 10))
		case int64:
			output.WriteString(strconv.FormatInt(message, 10))
		case error:
			output.WriteString(message.Error())
		case Stringer:
			output.WriteString(message.String())
		case nil:
			output.WriteString("<nil>")
		default:
			output.WriteString("<unknown>")
		}
	}
	return output.String()
}

func MapToString[T any](arr []T) []string {
	stringArr := make([]string, 0, len(arr))
	for _, it := range arr {
		stringArr = append(stringArr, ToString(it))
	}
	return stringArr
}
