// Package web holds the browser client served on the landing route.
package web

import _ "embed"

//go:embed index.html
var IndexHTML []byte
