package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"talent-source/config"
	"talent-source/internal/app"
	"talent-source/internal/httpapi"
	"talent-source/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := utils.Init(cfg.Debug()); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer utils.Sync()

	// built once per execution environment and reused across invocations
	a, err := app.New(context.Background(), cfg)
	if err != nil {
		utils.Logger().Fatal("build app", zap.Error(err))
	}

	lambda.StartWithOptions(httpapi.LambdaHandler(a.Handler()),
		lambda.WithEnableSIGTERM(func() {
			if err := a.Close(context.Background()); err != nil {
				utils.Logger().Warn("shutdown", zap.Error(err))
			}
			utils.Sync()
		}))
}
