package main

import (
	"os"

	"github.com/feedsift/feedsift/internal/logger"
	"github.com/feedsift/feedsift/relayservice"
)

func main() {
	if err := relayservice.Run(); err != nil {
		log := logger.New("feedsift-relay")
		log.Error().Err(err).Msg("relay exited with error")
		os.Exit(1)
	}
}
