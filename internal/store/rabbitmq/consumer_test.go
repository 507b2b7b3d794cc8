package rabbitmq

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestAttemptOf(t *testing.T) {
	if n := attemptOf(nil); n != 1 {
		t.Fatalf("first delivery should be attempt 1, got %d", n)
	}
	if n := attemptOf(amqp.Table{attemptHeader: int32(3)}); n != 3 {
		t.Fatalf("got %d", n)
	}
	if n := attemptOf(amqp.Table{attemptHeader: int64(2)}); n != 2 {
		t.Fatalf("got %d", n)
	}
	if n := attemptOf(amqp.Table{attemptHeader: "x"}); n != 1 {
		t.Fatalf("garbage header should count as first attempt, got %d", n)
	}
}

func TestRetryDelay(t *testing.T) {
	want := []time.Duration{5 * time.Second, 20 * time.Second, 80 * time.Second}
	for i, w := range want {
		if got := retryDelay(i + 1); got != w {
			t.Fatalf("attempt %d: got %v want %v", i+1, got, w)
		}
	}
}

func TestDecodeJob(t *testing.T) {
	if _, err := decodeJob([]byte(`{`)); err == nil {
		t.Fatalf("expected json error")
	}
	if _, err := decodeJob([]byte(`{"kind":"welcome","subject":"s","body":"b"}`)); err == nil {
		t.Fatalf("expected validation error")
	}
	j, err := decodeJob([]byte(`{"kind":"signup_otp","to":"a@b.test","subject":"s","body":"b"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if j.To != "a@b.test" || j.Kind != "signup_otp" {
		t.Fatalf("unexpected job %+v", j)
	}
}

func TestQueueNames(t *testing.T) {
	if RetryQueue("mail_jobs") != "mail_jobs.retry" || DeadLetterQueue("mail_jobs") != "mail_jobs.dlq" {
		t.Fatalf("queue names drifted")
	}
}

func TestTopologyDeadLetterRouting(t *testing.T) {
	qs := topology("mail_jobs")
	if len(qs) != 3 {
		t.Fatalf("expected 3 queues, got %d", len(qs))
	}
	routes := map[string]any{}
	for _, q := range qs {
		routes[q.name] = q.args["x-dead-letter-routing-key"]
	}
	if routes["mail_jobs"] != "mail_jobs.dlq" {
		t.Fatalf("main queue must dead-letter to the dlq, got %v", routes["mail_jobs"])
	}
	if routes["mail_jobs.retry"] != "mail_jobs" {
		t.Fatalf("retry queue must dead-letter to the main queue, got %v", routes["mail_jobs.retry"])
	}
	if routes["mail_jobs.dlq"] != nil {
		t.Fatalf("dlq must not dead-letter further")
	}
	if qs[len(qs)-1].name != "mail_jobs" {
		t.Fatalf("main queue is declared last so its dlq exists first")
	}
}

func TestPersistentPublishing(t *testing.T) {
	p := persistent([]byte(`{}`), "welcome")
	if p.DeliveryMode != amqp.Persistent || p.Type != "welcome" || p.ContentType != "application/json" {
		t.Fatalf("unexpected publishing %+v", p)
	}
}
