package main

import (
	"fmt"

	_ "github.com/agentuity/querycache/cache"
	_ "github.com/agentuity/querycache/config"
	_ "github.com/agentuity/querycache/env"
	_ "github.com/agentuity/querycache/logger"
	_ "github.com/agentuity/querycache/params"
	_ "github.com/agentuity/querycache/query"
	_ "github.com/agentuity/querycache/string"
	_ "github.com/agentuity/querycache/telemetry"
	_ "github.com/agentuity/querycache/tui"
)

func main() {
	fmt.Println("querycache: use cmd/querycache")
}
