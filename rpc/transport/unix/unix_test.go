package unix

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dCtl/rpc/common"
)

func startEcho(t *testing.T, delay time.Duration) (string, context.CancelFunc) {
	t.Helper()
	socket := filepath.Join(t.TempDir(), "rpc.sock")

	srv := NewUnixServerTransport(0, 4)
	srv.RegisterHandler(func(ctx context.Context, req []byte) []byte {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
		}
		return append([]byte("echo:"), req...)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Listen(ctx, common.ServerConfig{Transport: common.ServerTransportConfig{Endpoint: socket}})
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Listen returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Errorf("server did not stop")
		}
	})
	return socket, cancel
}

func connect(t *testing.T, socket string) *common.ClientConfig {
	t.Helper()
	return &common.ClientConfig{
		Transport: common.ClientTransportConfig{
			Endpoints:              []string{socket},
			ConnectionsPerEndpoint: 2,
			RetryCount:             3,
		},
		TimeoutSecond: 5,
	}
}

func dial(t *testing.T, socket string) func(context.Context, []byte) ([]byte, error) {
	t.Helper()
	cfg := connect(t, socket)
	client := NewUnixClientTransport()

	var err error
	for i := 0; i < 50; i++ {
		if err = client.Connect(*cfg); err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client.Send
}

func TestRoundTrip(t *testing.T) {
	socket, _ := startEcho(t, 0)
	send := dial(t, socket)

	resp, err := send(context.Background(), []byte("hello"))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if string(resp) != "echo:hello" {
		t.Errorf("unexpected response %q", resp)
	}

	// empty frames are valid
	resp, err = send(context.Background(), nil)
	if err != nil {
		t.Fatalf("send empty: %v", err)
	}
	if string(resp) != "echo:" {
		t.Errorf("unexpected response %q", resp)
	}
}

func TestConcurrentRequestsAreCorrelated(t *testing.T) {
	socket, _ := startEcho(t, 5*time.Millisecond)
	send := dial(t, socket)

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := []byte(fmt.Sprintf("req-%d", i))
			resp, err := send(context.Background(), req)
			if err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(resp, append([]byte("echo:"), req...)) {
				errs <- fmt.Errorf("request %d got %q", i, resp)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestSendHonoursContext(t *testing.T) {
	socket, _ := startEcho(t, 2*time.Second)
	send := dial(t, socket)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := send(ctx, []byte("slow")); err == nil {
		t.Fatalf("expected an error")
	}
	if time.Since(start) > time.Second {
		t.Errorf("send did not return on context deadline")
	}
}
