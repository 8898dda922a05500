package main

import (
	"os"

	citysqlcmder "github.com/papercomputeco/citysql/cmd/citysql"
)

func main() {
	cmd := citysqlcmder.NewCitysqlCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
