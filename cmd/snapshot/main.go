package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"talent-source/config"
	"talent-source/internal/app"
	"talent-source/internal/export"
	"talent-source/services"
	"talent-source/utils"
)

type Response events.APIGatewayV2HTTPResponse

type apiResponse struct {
	Message  string                 `json:"message"`
	Snapshot *export.SnapshotResult `json:"snapshot,omitempty"`
	Seconds  float64                `json:"seconds"`
}

// snapshots are cut on Riyadh calendar days
var snapshotLocation = time.FixedZone("AST", 3*60*60)

var snapshotNow = func() time.Time {
	return time.Now().In(snapshotLocation)
}

func handler(ctx context.Context) (Response, error) {
	start := time.Now()
	cfg, err := config.Load()
	if err != nil {
		return errorResponse(http.StatusInternalServerError, fmt.Errorf("load config: %w", err))
	}
	if err := utils.Init(cfg.Debug()); err != nil {
		return errorResponse(http.StatusInternalServerError, fmt.Errorf("init logger: %w", err))
	}
	defer utils.Sync()

	startDate, endDate, err := determineDateRange(cfg)
	if err != nil {
		return errorResponse(http.StatusBadRequest, err)
	}

	awsCfg, err := app.NewAWSConfig(ctx, cfg)
	if err != nil {
		return errorResponse(http.StatusInternalServerError, fmt.Errorf("load aws config: %w", err))
	}
	exports := export.NewService(app.NewStore(awsCfg, cfg), services.NewS3Service(awsCfg, cfg.S3Endpoint),
		cfg.SnapshotBucket, cfg.SnapshotS3Key)

	res, err := exports.CandidatesSnapshot(ctx, startDate, endDate)
	if err != nil {
		return errorResponse(http.StatusInternalServerError, err)
	}

	payload := apiResponse{Message: "Snapshot processing completed", Snapshot: res, Seconds: time.Since(start).Seconds()}
	if res.Candidates == 0 {
		payload.Message = "Snapshot completed - no candidates for requested date(s)"
	}
	return jsonResponse(http.StatusOK, payload), nil
}

func main() {
	lambda.Start(handler)
}

func jsonResponse(status int, payload interface{}) Response {
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{
			StatusCode: http.StatusInternalServerError,
			Headers: map[string]string{
				"Content-Type": "application/json",
			},
			Body: fmt.Sprintf(`{"message":%q}`, err.Error()),
		}
	}

	return Response{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: string(body),
	}
}

func errorResponse(status int, err error) (Response, error) {
	payload := map[string]string{
		"message": err.Error(),
	}

	return jsonResponse(status, payload), nil
}

// determineDateRange returns the start/end date range using optional env overrides.
func determineDateRange(cfg *config.Config) (string, string, error) {
	return export.DateRange(cfg.SnapshotStartDate, cfg.SnapshotEndDate, snapshotNow())
}
