package main

import "diskscout/internal/app"

func main() {
	app.Run()
}
