package payment

import "time"

// Recorder は決済処理のメトリクスを記録する。metrics.Collectorが実装する。
type Recorder interface {
	RecordPaymentOrder(result string)
	RecordPaymentVerification(result string)
	RecordWebhookEvent(event, result string)
	RecordGatewayLatency(duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordPaymentOrder(string)          {}
func (nopRecorder) RecordPaymentVerification(string)   {}
func (nopRecorder) RecordWebhookEvent(string, string)  {}
func (nopRecorder) RecordGatewayLatency(time.Duration) {}

func recorderOrNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}
