package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rabbitmq/amqp091-go"

	"friendsnav/models"
)

type published struct {
	exchange string
	key      string
	msg      amqp091.Publishing
}

type fakeChannel struct {
	declared   []string
	published  []published
	declareErr error
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error {
	f.declared = append(f.declared, name+":"+kind)
	return f.declareErr
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	f.published = append(f.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestPublisher_PublishView(t *testing.T) {
	ch := &fakeChannel{}
	p, err := newPublisher(ch, "views")
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	if len(ch.declared) != 1 || ch.declared[0] != "views:topic" {
		t.Errorf("expected topic exchange to be declared, got %v", ch.declared)
	}

	vm := &models.ViewModel{TeamID: "TEAM_AB12CD34", Version: 3, Members: []models.MemberView{}}
	if err := p.PublishView(context.Background(), vm); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(ch.published) != 1 {
		t.Fatalf("expected one message, got %d", len(ch.published))
	}
	got := ch.published[0]
	if got.exchange != "views" || got.key != "team.TEAM_AB12CD34.view" {
		t.Errorf("unexpected destination %s / %s", got.exchange, got.key)
	}
	if got.msg.ContentType != "application/json" {
		t.Errorf("unexpected content type %s", got.msg.ContentType)
	}
	var decoded models.ViewModel
	if err := json.Unmarshal(got.msg.Body, &decoded); err != nil || decoded.Version != 3 {
		t.Errorf("body does not carry the view: %v %+v", err, decoded)
	}

	if err := p.Close(); err != nil || !ch.closed {
		t.Errorf("close: %v closed=%v", err, ch.closed)
	}
}

func TestPublisher_DeclareFailure(t *testing.T) {
	ch := &fakeChannel{declareErr: errors.New("access refused")}
	if _, err := newPublisher(ch, "views"); err == nil {
		t.Fatal("expected declare failure to be returned")
	}
	if !ch.closed {
		t.Error("channel should be closed after a failed declare")
	}
}
