package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveBus_FollowsServiceConfig(t *testing.T) {
	for _, env := range []string{"NATS_URL", "NATS_SUBJECT"} {
		t.Setenv(env, "")
		require.NoError(t, os.Unsetenv(env))
	}
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nats:\n  url: nats://10.0.0.1:4222\n  subject: from.yaml\n"), 0o644))

	url, subject, err := resolveBus(path)
	require.NoError(t, err)
	assert.Equal(t, "nats://10.0.0.1:4222", url)
	assert.Equal(t, "from.yaml", subject)

	// .env and the environment win over the file, like for the service
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("NATS_SUBJECT=from.dotenv\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("NATS_SUBJECT") })
	_, subject, err = resolveBus(path)
	require.NoError(t, err)
	assert.Equal(t, "from.dotenv", subject)

	t.Setenv("NATS_SUBJECT", "from.env")
	_, subject, err = resolveBus(path)
	require.NoError(t, err)
	assert.Equal(t, "from.env", subject)
}

func TestPublish_SendsEnvelope(t *testing.T) {
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	s := natsserver.RunServer(&opts)
	defer s.Shutdown()

	nc, err := nats.Connect(s.ClientURL())
	require.NoError(t, err)
	defer nc.Close()
	sub, err := nc.SubscribeSync("items.updates")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	require.NoError(t, publish(s.ClientURL(), "items.updates", "external_message", "hi"))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	var envelope map[string]any
	require.NoError(t, json.Unmarshal(msg.Data, &envelope))
	assert.Equal(t, "external_message", envelope["type"])
	assert.Equal(t, map[string]any{"text": "hi"}, envelope["payload"])
}
