package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteEnvFileSeedsOwnerAndServer(t *testing.T) {
	dir := t.TempDir()

	written, err := WriteEnvFile(dir, EnvSeed{OwnerID: "alice", ServerURL: "https://notes.example.com"}, false)
	require.NoError(t, err)
	assert.True(t, written)

	env, err := godotenv.Read(filepath.Join(dir, ".env"))
	require.NoError(t, err)
	assert.Equal(t, "alice", env["NOTESYNC_SYNC_OWNER_ID"])
	assert.Equal(t, "https://notes.example.com", env["NOTESYNC_SERVER_URL"])
	assert.Equal(t, "local-wins", env["NOTESYNC_SYNC_STRATEGY"])
}

func TestWriteEnvFileKeepsExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("NOTESYNC_SYNC_OWNER_ID=bob\n"), 0600))

	written, err := WriteEnvFile(dir, EnvSeed{OwnerID: "alice"}, false)
	require.NoError(t, err)
	assert.False(t, written)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "NOTESYNC_SYNC_OWNER_ID=bob\n", string(data))
}

func TestWriteEnvFileReplaceBacksUp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("NOTESYNC_SYNC_OWNER_ID=bob\n"), 0600))

	written, err := WriteEnvFile(dir, EnvSeed{}, true)
	require.NoError(t, err)
	assert.True(t, written)

	backup := path + "." + time.Now().Format("2006-01-02") + ".bak"
	data, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, "NOTESYNC_SYNC_OWNER_ID=bob\n", string(data))

	env, err := godotenv.Read(path)
	require.NoError(t, err)
	assert.Empty(t, env["NOTESYNC_SYNC_OWNER_ID"])
}

func TestSeedEnvUncommentsKey(t *testing.T) {
	sample := []byte("# Remote\n#NOTESYNC_SERVER_DEVICE_NAME=\nNOTESYNC_SYNC_OWNER_ID=\n")

	out := seedEnv(sample, map[string]string{"NOTESYNC_SERVER_DEVICE_NAME": "laptop"})

	assert.Equal(t, "# Remote\nNOTESYNC_SERVER_DEVICE_NAME=laptop\nNOTESYNC_SYNC_OWNER_ID=\n", string(out))
}
