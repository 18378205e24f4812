package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opendut/carl/pkg/buildinfo"
	"github.com/opendut/carl/pkg/log"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "carl version",
		Run: func(cmd *cobra.Command, args []string) {
			data, err := json.Marshal(map[string]string{
				"version": buildinfo.Version,
				"gitSHA":  buildinfo.GitSHA,
				"go":      buildinfo.GoVersion,
			})
			if err != nil {
				log.Fatal(err)
			}
			fmt.Printf("%s\n", data)
		},
	}
}
