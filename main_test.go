package main

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/rs/zerolog"
	"github.com/vinizap/pronode/config"
)

func TestRunReturnsListenError(t *testing.T) {
	busy, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer busy.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cfg := config.Config{Port: strconv.Itoa(busy.Addr().(*net.TCPAddr).Port)}

	err = run(ctx, cfg, zerolog.Nop())
	assert.NotEqual(t, err, nil)
	assert.Equal(t, ctx.Err(), nil)
}
