package main

import (
	"context"
	"log"

	corecmd "github.com/Gabrielbm2/chatbot-telegram/core/cmd"
	"github.com/Gabrielbm2/chatbot-telegram/mockbank/app"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		ConfigEnvVar:      "MOCKBANK_CONFIG",
		DefaultConfigPath: "configs/config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return app.LoadConfig(path)
		},
		Bootstrap: func(ctx context.Context, cfg corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			return app.Bootstrap(ctx, cfg.(*app.Config))
		},
	})
	if err != nil {
		log.Fatalf("mockbank: %v", err)
	}
}
