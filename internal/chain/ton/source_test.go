package ton

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"xepbot/internal/chain"
	"xepbot/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xssnick/tonutils-go/address"
)

func testHash(b byte) []byte {
	h := make([]byte, 32)
	for i := range h {
		h[i] = b
	}
	return h
}

func TestNormalizeAddress(t *testing.T) {
	hash := testHash(0xab)
	raw := "0:" + hex.EncodeToString(hash)

	bounceable := address.NewAddress(0x11, 0, hash).String()
	require.Equal(t, raw, NormalizeAddress(bounceable))
	require.Equal(t, raw, NormalizeAddress(raw))
	require.Equal(t, raw, NormalizeAddress("0:"+strings.ToUpper(hex.EncodeToString(hash))))

	require.Equal(t, "garbage", NormalizeAddress("garbage"))
}

func platformTxJSON(lt int64, hash, dest, src, memo string, value int64) string {
	body := "null"
	if memo != "" {
		body = fmt.Sprintf(`{"text":%q}`, memo)
	}
	return fmt.Sprintf(`{"hash":%q,"lt":%d,"success":true,"in_msg":{"value":%d,
		"destination":{"address":%q},"source":{"address":%q},"decoded_body":%s}}`,
		hash, lt, value, dest, src, body)
}

func TestSource_Poll(t *testing.T) {
	platform := "0:" + hex.EncodeToString(testHash(0x01))
	payer := "0:" + hex.EncodeToString(testHash(0x02))
	other := "0:" + hex.EncodeToString(testHash(0x03))

	txs := []string{
		platformTxJSON(30, "h3", platform, payer, "ref-3", 3_000_000_000),
		platformTxJSON(20, "h2", platform, payer, "", 1_000_000_000),
		platformTxJSON(15, "h-out", other, platform, "x", 5),
		platformTxJSON(10, "h1", platform, payer, "  ref-1 ", 1_000_000_000),
	}

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/blockchain/accounts/"+platform+"/transactions", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		fmt.Fprintf(w, `{"transactions":[%s]}`, strings.Join(txs, ","))
	}))
	defer srv.Close()

	cursor := chain.NewStateCursor(state.NewMemoryStore())
	src := NewSource(NewClientWithURL(srv.URL, ""), platform, cursor)

	events, err := src.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)

	require.Equal(t, "ref-3", events[0].Ref)
	require.Equal(t, "3000000000", events[0].Amount)
	require.Equal(t, "h3", events[0].TxHash)
	require.Equal(t, payer, events[0].Payer)
	require.Equal(t, "ton", events[0].Source)
	require.Equal(t, "ref-1", events[1].Ref)

	lt, ok, err := cursor.Load(context.Background(), "ton")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(30), lt)

	// второй опрос: все уже видели
	events, err = src.Poll(context.Background())
	require.NoError(t, err)
	require.Empty(t, events)
	require.Equal(t, 2, calls)
}

func TestSource_PollPagesBackToCursor(t *testing.T) {
	platform := "0:" + hex.EncodeToString(testHash(0x01))
	payer := "0:" + hex.EncodeToString(testHash(0x02))

	// lt 120..1, новые первыми
	var all []string
	for lt := int64(120); lt >= 1; lt-- {
		all = append(all, platformTxJSON(lt, fmt.Sprintf("h%d", lt), platform, payer, fmt.Sprintf("ref-%d", lt), 1))
	}

	var befores []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		before := r.URL.Query().Get("before_lt")
		befores = append(befores, before)
		start := 0
		if before != "" {
			n, err := strconv.Atoi(before)
			assert.NoError(t, err)
			start = 120 - n + 1
		}
		end := start + 50
		if end > len(all) {
			end = len(all)
		}
		fmt.Fprintf(w, `{"transactions":[%s]}`, strings.Join(all[start:end], ","))
	}))
	defer srv.Close()

	cursor := chain.NewStateCursor(state.NewMemoryStore())
	require.NoError(t, cursor.Save(context.Background(), "ton", 5))
	src := NewSource(NewClientWithURL(srv.URL, ""), platform, cursor)

	events, err := src.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 115)
	require.Equal(t, "ref-120", events[0].Ref)
	require.Equal(t, "ref-6", events[len(events)-1].Ref)
	require.Equal(t, []string{"", "71", "21"}, befores)

	lt, _, err := cursor.Load(context.Background(), "ton")
	require.NoError(t, err)
	require.Equal(t, uint64(120), lt)
}

func TestSource_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	src := NewSource(NewClientWithURL(srv.URL, ""), "0:"+hex.EncodeToString(testHash(1)),
		chain.NewStateCursor(state.NewMemoryStore()))
	_, err := src.Poll(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
}

func TestClient_AuthHeader(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"transactions":[]}`)
	}))
	defer srv.Close()

	_, err := NewClientWithURL(srv.URL, "AFkey").GetTransactions(context.Background(), "addr", 1, 0)
	require.NoError(t, err)
	require.Equal(t, "Bearer AFkey", got)

	_, err = NewClientWithURL(srv.URL, "short").GetTransactions(context.Background(), "addr", 1, 0)
	require.NoError(t, err)
	require.Empty(t, got)
}
