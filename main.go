package main

import "docstyler/internal/app"

func main() {
	app.Main()
}
