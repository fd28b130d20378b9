// Command ncdquery looks up keys against a local NCD file or an HTTP URL
// serving one via byte-range requests.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/theflywheel/ncd"
	"github.com/theflywheel/ncd/accessors"
)

func main() {
	var (
		path = flag.String("file", "", "local NCD file path")
		url  = flag.String("url", "", "HTTP URL serving an NCD file via range requests")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if *path == "" && *url == "" {
		logger.Fatal().Msg("one of --file or --url is required")
	}
	if flag.NArg() == 0 {
		logger.Fatal().Msg("usage: ncdquery [--file PATH | --url URL] KEY [KEY...]")
	}

	ctx := context.Background()

	var accessor ncd.ReadAccessor
	if *path != "" {
		fa, err := accessors.OpenFile(*path)
		if err != nil {
			logger.Fatal().Err(err).Msg("open file")
		}
		defer fa.Close()
		accessor = fa
	} else {
		accessor = accessors.NewHTTPAccessor(*url, accessors.DefaultHTTPConfig())
	}

	reader, err := ncd.OpenReader(ctx, accessor)
	if err != nil {
		logger.Fatal().Err(err).Msg("open reader")
	}

	for _, key := range flag.Args() {
		value, ok, err := reader.Get(ctx, []byte(key))
		if err != nil {
			logger.Error().Err(err).Str("key", key).Msg("lookup failed")
			continue
		}
		if !ok {
			fmt.Printf("%s: missing key\n", key)
			continue
		}
		fmt.Printf("%s: %s\n", key, value)
	}
}
