package main

import (
	"encoding/json"
	"io/ioutil"
	stdlog "log"
	"net/http"
	"os"

	"github.com/go-kit/log/level"

	remoteauth "github.com/bookgate/bookgate/pkg/authenticate/remote"
	"github.com/bookgate/bookgate/pkg/authenticate/static"
	"github.com/bookgate/bookgate/pkg/logger"
)

// Serves the validation endpoint the remote auth provider talks to, from a
// fixed token table. Meant for development setups and integration tests, not
// for production identity.
func main() {
	if len(os.Args) != 3 {
		stdlog.Fatalf("expected two arguments, the listen address and a path to a JSON file containing token entries")
	}

	data, err := ioutil.ReadFile(os.Args[2])
	if err != nil {
		stdlog.Fatalf("unable to read JSON file: %v", err)
	}

	var entries []static.TokenEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		stdlog.Fatalf("unable to parse contents of %s: %v", os.Args[2], err)
	}

	tokens := make(map[string]remoteauth.MockEntry, len(entries))
	for _, e := range entries {
		tokens[e.Token] = remoteauth.MockEntry{
			Subject: e.Subject,
			Name:    e.Name,
			Roles:   e.Roles,
		}
	}

	lgr := logger.New("")
	level.Info(lgr).Log("msg", "Bookgate authorization-server initialized.")

	s := remoteauth.NewMock(lgr, tokens)

	if err := http.ListenAndServe(os.Args[1], s); err != nil {
		stdlog.Fatalf("server exited: %v", err)
	}
}
