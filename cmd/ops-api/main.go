package main

import "context"

func main() {
	app := mustBootstrapOpsAPI()
	defer app.Close()

	if err := app.Run(); err != nil && err != context.Canceled {
		panic(err)
	}
}
