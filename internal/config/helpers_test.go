// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package config_test

import (
	"bytes"
	"io"
	"strings"
)

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

func containsMsg(err error, msg string) bool {
	return strings.Contains(err.Error(), msg)
}
