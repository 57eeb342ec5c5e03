package notify

import (
	"context"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wneessen/go-mail"
)

func TestMailerSerializesSends(t *testing.T) {
	sender := &overlapSender{}
	m := NewMailer(sender, "quiz@school.my", "instructor@school.my")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.NotifyResult(context.Background(), sampleResult()); err != nil {
				t.Errorf("notify: %v", err)
			}
		}()
	}
	wg.Wait()

	if sender.maxInFlight.Load() != 1 {
		t.Fatalf("expected one send at a time, saw %d", sender.maxInFlight.Load())
	}
	if sender.sent.Load() != 8 {
		t.Fatalf("expected 8 sends, got %d", sender.sent.Load())
	}
}

func TestMailerGivesUpWaitingWhenContextEnds(t *testing.T) {
	release := make(chan struct{})
	sender := &blockingSender{release: release}
	m := NewMailer(sender, "quiz@school.my", "instructor@school.my")

	go func() { _ = m.NotifyResult(context.Background(), sampleResult()) }()
	waitFor(t, func() bool { return sender.started.Load() })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := m.NotifyResult(ctx, sampleResult()); err == nil {
		t.Fatalf("expected queued send to give up with the context")
	}
	close(release)
}

func TestSMTPMailerConcurrentNotify(t *testing.T) {
	addr, received := serveSMTP(t)
	host, port, _ := net.SplitHostPort(addr)
	portNum, _ := strconv.Atoi(port)

	m, err := NewSMTPMailer(MailConfig{Host: host, Port: portNum, From: "quiz@school.my", Instructor: "instructor@school.my"})
	if err != nil {
		t.Fatalf("mailer: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done := make(chan struct{})
	var failed atomic.Int32
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := m.NotifyResult(ctx, sampleResult()); err != nil {
					failed.Add(1)
				}
			}()
		}
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("concurrent sends did not finish")
	}
	if failed.Load() != 0 || received.Load() != 4 {
		t.Fatalf("expected 4 delivered mails, got %d (failed %d)", received.Load(), failed.Load())
	}
}

type overlapSender struct {
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	sent        atomic.Int32
}

func (s *overlapSender) DialAndSendWithContext(_ context.Context, _ ...*mail.Msg) error {
	n := s.inFlight.Add(1)
	for {
		peak := s.maxInFlight.Load()
		if n <= peak || s.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	s.inFlight.Add(-1)
	s.sent.Add(1)
	return nil
}

type blockingSender struct {
	started atomic.Bool
	release chan struct{}
}

func (s *blockingSender) DialAndSendWithContext(_ context.Context, _ ...*mail.Msg) error {
	s.started.Store(true)
	<-s.release
	return nil
}

// serveSMTP runs a minimal SMTP server that accepts every command and counts
// delivered messages.
func serveSMTP(t *testing.T) (string, *atomic.Int32) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	var received atomic.Int32
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go handleSMTP(conn, &received)
		}
	}()
	return ln.Addr().String(), &received
}

func handleSMTP(conn net.Conn, received *atomic.Int32) {
	tp := textproto.NewConn(conn)
	defer tp.Close()
	_ = tp.PrintfLine("220 localhost ESMTP")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
		switch verb {
		case "DATA":
			_ = tp.PrintfLine("354 end data with <CR><LF>.<CR><LF>")
			if _, err := tp.ReadDotBytes(); err != nil {
				return
			}
			received.Add(1)
			_ = tp.PrintfLine("250 queued")
		case "QUIT":
			_ = tp.PrintfLine("221 bye")
			return
		default:
			_ = tp.PrintfLine("250 ok")
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}
