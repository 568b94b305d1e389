package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type browseEvent struct {
	entry   ServiceEntry
	removed bool
}

// scriptedBrowse returns a browseFunc that plays events and then blocks
// until the context ends. A non-nil fail is returned right after the events.
func scriptedBrowse(events []browseEvent, fail error) browseFunc {
	return func(ctx context.Context, service string, entries, removed chan<- ServiceEntry) error {
		if service != ServiceType {
			return errors.New("unexpected service " + service)
		}
		for _, ev := range events {
			ch := entries
			if ev.removed {
				ch = removed
			}
			select {
			case ch <- ev.entry:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if fail != nil {
			return fail
		}
		<-ctx.Done()
		return ctx.Err()
	}
}

func testBrowser(events []browseEvent, fail error) *Browser {
	b := NewBrowser(BrowserConfig{BrowseTimeout: 200 * time.Millisecond})
	b.browse = scriptedBrowse(events, fail)
	return b
}

func hubEntry(instance, program string, addrs ...string) ServiceEntry {
	return ServiceEntry{
		Instance: instance,
		Host:     instance + ".local.",
		Port:     9877,
		Text:     []string{"program=" + program, "version=2.1"},
		Addrs:    addrs,
	}
}

func collect(t *testing.T, ch <-chan *HubService, n int) []*HubService {
	t.Helper()
	var out []*HubService
	for len(out) < n {
		select {
		case svc, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, svc)
		case <-time.After(time.Second):
			t.Fatalf("got %d services, want %d", len(out), n)
		}
	}
	return out
}

func TestDecodeHubTXT(t *testing.T) {
	tests := []struct {
		name    string
		txt     []string
		want    *HubInfo
		wantErr error
	}{
		{"Full", []string{"program=APO", "version=2.1"}, &HubInfo{Program: "APO", Version: "2.1"}, nil},
		{"KeysIgnoreCase", []string{"Program=APO"}, &HubInfo{Program: "APO"}, nil},
		{"MissingProgram", []string{"version=2.1"}, nil, ErrMissingRequired},
		{"EmptyProgram", []string{"program= "}, nil, ErrInvalidTXTRecord},
		{"FlagOnly", []string{"program"}, nil, ErrInvalidTXTRecord},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeHubTXT(StringsToTXTRecords(tt.txt))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeHubTXT(t *testing.T) {
	assert.Equal(t, []string{"program=APO", "version=2.1"},
		TXTRecordsToStrings(EncodeHubTXT(&HubInfo{Program: "APO", Version: "2.1"})))
	assert.Equal(t, []string{"program=APO"},
		TXTRecordsToStrings(EncodeHubTXT(&HubInfo{Program: "APO"})))
}

func TestHubServiceAddress(t *testing.T) {
	svc := &HubService{Host: "hub.local.", Port: 9000}
	assert.Equal(t, "hub.local:9000", svc.Address())

	svc.Addresses = []string{"fe80::1", "10.0.0.2"}
	assert.Equal(t, "[fe80::1]:9000", svc.Address())

	svc.Port = 0
	svc.Addresses = []string{"10.0.0.2"}
	assert.Equal(t, "10.0.0.2:9877", svc.Address())

	svc.InstanceName, svc.Program = "tron", "APO"
	assert.Equal(t, "tron (APO) at 10.0.0.2:9877", svc.String())
}

func TestBrowse(t *testing.T) {
	t.Run("EmitsEachHubOnce", func(t *testing.T) {
		b := testBrowser([]browseEvent{
			{entry: hubEntry("tron", "APO", "10.0.0.2")},
			{entry: hubEntry("tron", "APO", "fe80::2")},
			{entry: hubEntry("sim", "TEST", "10.0.0.3")},
		}, nil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		results, err := b.Browse(ctx)
		require.NoError(t, err)
		got := collect(t, results, 2)
		require.Len(t, got, 2)

		assert.Equal(t, "tron", got[0].InstanceName)
		assert.Equal(t, "APO", got[0].Program)
		assert.Equal(t, "2.1", got[0].Version)
		assert.Equal(t, []string{"10.0.0.2"}, got[0].Addresses)
		assert.Equal(t, "sim", got[1].InstanceName)

		cancel()
		_, open := <-results
		for open {
			_, open = <-results
		}
	})

	t.Run("SkipsInvalidTXT", func(t *testing.T) {
		bad := hubEntry("broken", "X")
		bad.Text = []string{"version=1"}
		b := testBrowser([]browseEvent{
			{entry: bad},
			{entry: hubEntry("tron", "APO", "10.0.0.2")},
		}, nil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		results, err := b.Browse(ctx)
		require.NoError(t, err)
		got := collect(t, results, 1)
		assert.Equal(t, "tron", got[0].InstanceName)
	})

	t.Run("RemovedHubIsReportedAgain", func(t *testing.T) {
		b := testBrowser([]browseEvent{
			{entry: hubEntry("tron", "APO", "10.0.0.2")},
			{entry: ServiceEntry{Instance: "tron", Addrs: []string{"10.0.0.2"}}, removed: true},
			{entry: hubEntry("tron", "APO", "10.0.0.9")},
		}, nil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		results, err := b.Browse(ctx)
		require.NoError(t, err)
		got := collect(t, results, 2)
		require.Len(t, got, 2)
		assert.Equal(t, []string{"10.0.0.9"}, got[1].Addresses)
	})

	t.Run("ClosesOnBrowseError", func(t *testing.T) {
		b := testBrowser(nil, errors.New("no multicast interfaces"))
		results, err := b.Browse(context.Background())
		require.NoError(t, err)

		select {
		case _, ok := <-results:
			assert.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("results not closed")
		}
	})

	t.Run("CancelledContext", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := testBrowser(nil, nil).Browse(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestFindHub(t *testing.T) {
	events := []browseEvent{
		{entry: hubEntry("sim", "TEST", "10.0.0.3")},
		{entry: hubEntry("tron", "APO", "10.0.0.2")},
	}

	t.Run("ByProgram", func(t *testing.T) {
		svc, err := testBrowser(events, nil).FindHub(context.Background(), "APO")
		require.NoError(t, err)
		assert.Equal(t, "tron", svc.InstanceName)
		assert.Equal(t, "10.0.0.2:9877", svc.Address())
	})

	t.Run("AnyProgram", func(t *testing.T) {
		svc, err := testBrowser(events, nil).FindHub(context.Background(), "")
		require.NoError(t, err)
		assert.Equal(t, "sim", svc.InstanceName)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := testBrowser(events, nil).FindHub(context.Background(), "OTHER")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		b := testBrowser(nil, nil)
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()
		_, err := b.FindHub(ctx, "APO")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestDefaultBrowserConfig(t *testing.T) {
	cfg := DefaultBrowserConfig()
	assert.Equal(t, BrowseTimeout, cfg.BrowseTimeout)
	assert.Empty(t, cfg.Interface)

	b := NewBrowser(BrowserConfig{})
	assert.Equal(t, BrowseTimeout, b.config.BrowseTimeout)
	assert.NotNil(t, b.browse)
}
