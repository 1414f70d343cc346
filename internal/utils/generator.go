package utils

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	DefaultShortCodeLength = 8
	alphabet               = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

func GenerateShortCode() (string, error) {
	return GenerateShortCodeWithLength(DefaultShortCodeLength)
}

func GenerateShortCodeWithLength(length int) (string, error) {
	return gonanoid.Generate(alphabet, length)
}
