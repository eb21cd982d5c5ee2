package common

import (
	"log"
)

func Must(err error) {
	if err != nil {
		log.Fatalln(err)
	}
}

func Must1[T any](result T, err error) T {
	if err != nil {
		log.Fatalln(err)
	}
	return result
}
