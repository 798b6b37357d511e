// chatsyncd keeps one profile's local message cache in sync with the hosted
// backend: it mirrors realtime changes into sqlite and drains the durable
// outbox whenever the network allows.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/johnyarcher2100/chatwithyou-sync/internal/app"
	"github.com/johnyarcher2100/chatwithyou-sync/internal/profile"
	"go.uber.org/fx"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (defaults to config default_profile, then \"main\")")
	flag.Parse()

	name := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(name); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fx.New(app.Module(name)).Run()
}
