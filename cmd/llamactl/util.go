package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/loykin/llamactl/pkg/client"
)

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func newAPIClient(f *APIFlags) (*client.Client, error) {
	cfg := client.DefaultConfig()
	if f.URL != "" {
		cfg.BaseURL = f.URL
	}
	if f.Timeout > 0 {
		cfg.Timeout = f.Timeout
	}
	if f.CACert != "" || f.SkipVerify {
		cfg.TLS = &client.TLSClientConfig{CACert: f.CACert, SkipVerify: f.SkipVerify}
	}
	return client.New(cfg)
}
