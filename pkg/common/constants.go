package common

const (
	RedisStreamScanRequest = "screener.scan.request"

	RedisStreamGroup    = "screener-group"
	RedisStreamConsumer = "screener-consumer"
)

const (
	RunTypeManual            = "manual"
	RunTypeManualAPI         = "manual_api"
	RunTypeCLIManual         = "cli_manual"
	RunTypeScheduledFullScan = "scheduled_full_scan"
	RunTypeScheduledEvtScan  = "scheduled_event_scan"
)
