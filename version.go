package uv

const Version = "0.1.0"
