package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/butstore/whatsapp-bridge/internal/channels/whatsapp"
	"github.com/butstore/whatsapp-bridge/pkg/logging"
)

type stubClient struct {
	textCalls     []stubTextCall
	templateCalls []stubTemplateCall
	err           error
	messageID     string
}

type stubTextCall struct {
	to   string
	body string
}

type stubTemplateCall struct {
	to   string
	tmpl whatsapp.Template
}

func (c *stubClient) SendText(_ context.Context, to, body string) (*whatsapp.SendResponse, error) {
	c.textCalls = append(c.textCalls, stubTextCall{to: to, body: body})
	if c.err != nil {
		return nil, c.err
	}
	return stubResponse(c.messageID), nil
}

func (c *stubClient) SendTemplate(_ context.Context, to string, tmpl whatsapp.Template) (*whatsapp.SendResponse, error) {
	c.templateCalls = append(c.templateCalls, stubTemplateCall{to: to, tmpl: tmpl})
	if c.err != nil {
		return nil, c.err
	}
	return stubResponse(c.messageID), nil
}

func stubResponse(id string) *whatsapp.SendResponse {
	resp := &whatsapp.SendResponse{}
	resp.Messages = []struct {
		ID string `json:"id"`
	}{{ID: id}}
	return resp
}

type stubLog struct {
	records []*MessageRecord
	err     error
}

func (l *stubLog) LogOutbound(_ context.Context, rec *MessageRecord) error {
	l.records = append(l.records, rec)
	return l.err
}

func TestSendTextLogsExactlyOneSentRecord(t *testing.T) {
	client := &stubClient{messageID: "wamid.123"}
	log := &stubLog{}
	sender := NewSender(SenderConfig{Client: client, Store: log, Logger: logging.Default()})

	id, err := sender.SendText(context.Background(), "+201012345678", "hello", 1042)
	if err != nil {
		t.Fatalf("SendText returned error: %v", err)
	}
	if id != "wamid.123" {
		t.Fatalf("unexpected message id %q", id)
	}
	if len(client.textCalls) != 1 || client.textCalls[0].to != "201012345678" {
		t.Fatalf("expected digits-only recipient, got %+v", client.textCalls)
	}
	if len(log.records) != 1 {
		t.Fatalf("expected one record, got %d", len(log.records))
	}
	rec := log.records[0]
	if rec.ProviderID != "wamid.123" || rec.Type != MessageTypeText || rec.OrderNumber != 1042 {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestSendTextFailurePropagatesAndSkipsLog(t *testing.T) {
	client := &stubClient{err: errors.New("boom")}
	log := &stubLog{}
	sender := NewSender(SenderConfig{Client: client, Store: log, Logger: logging.Default()})

	if _, err := sender.SendText(context.Background(), "+201012345678", "hello", 0); err == nil {
		t.Fatal("expected primary send failure to propagate")
	}
	if len(log.records) != 0 {
		t.Fatal("expected no record on failed send")
	}
}

func TestSendTextStoreFailureIsSwallowed(t *testing.T) {
	client := &stubClient{messageID: "wamid.123"}
	log := &stubLog{err: errors.New("dynamo down")}
	sender := NewSender(SenderConfig{Client: client, Store: log, Logger: logging.Default()})

	if _, err := sender.SendText(context.Background(), "+201012345678", "hello", 0); err != nil {
		t.Fatalf("store failure must not surface, got %v", err)
	}
}

func TestSendTemplateMirrorsToTestRecipient(t *testing.T) {
	client := &stubClient{messageID: "wamid.123"}
	mirrorClient := &stubClient{messageID: "wamid.mirror"}
	mirror := NewMirror(true, mirrorClient, "+201000000000", logging.Default())
	sender := NewSender(SenderConfig{Client: client, Mirror: mirror, Logger: logging.Default()})

	vars := map[string]string{"name": "Omar", "orderid": "1042", "address": "Cairo", "price": "450"}
	if _, err := sender.SendTemplate(context.Background(), "+201012345678", whatsapp.TemplateOrderConfirmation, vars, 1042); err != nil {
		t.Fatalf("SendTemplate returned error: %v", err)
	}
	if len(mirrorClient.textCalls) != 1 {
		t.Fatalf("expected one diagnostic summary, got %d", len(mirrorClient.textCalls))
	}
	if len(mirrorClient.templateCalls) != 1 {
		t.Fatalf("expected template replay, got %d", len(mirrorClient.templateCalls))
	}
	if mirrorClient.templateCalls[0].to != "201000000000" {
		t.Fatalf("expected replay to test recipient, got %s", mirrorClient.templateCalls[0].to)
	}
	if mirrorClient.templateCalls[0].tmpl.Name != whatsapp.TemplateOrderConfirmation {
		t.Fatal("expected exact same template to be replayed")
	}
}

func TestMirrorFailureNeverSurfaces(t *testing.T) {
	client := &stubClient{messageID: "wamid.123"}
	mirrorClient := &stubClient{err: errors.New("mirror down")}
	mirror := NewMirror(true, mirrorClient, "+201000000000", logging.Default())
	sender := NewSender(SenderConfig{Client: client, Mirror: mirror, Logger: logging.Default()})

	if _, err := sender.SendText(context.Background(), "+201012345678", "hello", 0); err != nil {
		t.Fatalf("mirror failure must not surface, got %v", err)
	}
}

func TestMirrorSkipsWhenRecipientMatchesPrimary(t *testing.T) {
	client := &stubClient{messageID: "wamid.123"}
	mirrorClient := &stubClient{messageID: "wamid.mirror"}
	mirror := NewMirror(true, mirrorClient, "+201012345678", logging.Default())
	sender := NewSender(SenderConfig{Client: client, Mirror: mirror, Logger: logging.Default()})

	if _, err := sender.SendText(context.Background(), "+201012345678", "hello", 0); err != nil {
		t.Fatalf("SendText returned error: %v", err)
	}
	if len(mirrorClient.textCalls) != 0 {
		t.Fatal("expected no mirror send when recipient equals test recipient")
	}
}

func TestNewMirrorDisabled(t *testing.T) {
	if NewMirror(false, &stubClient{}, "+201000000000", nil) != nil {
		t.Fatal("expected nil mirror when beta mode off")
	}
	if NewMirror(true, &stubClient{}, "", nil) != nil {
		t.Fatal("expected nil mirror without recipient")
	}
}
