package model

import (
	"strings"
)

// SameAddress 忽略大小写比较两个十六进制地址
func SameAddress(a, b string) bool {
	return a != "" && strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
