package main

import "github.com/rbaliyan/postbox/internal/app"

func main() {
	app.Execute()
}
