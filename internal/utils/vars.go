package utils

const (
	AppName         = "oglauncher"
	ToolUserAgent   = "oglauncher/1.0"
	DefaultLockName = "open_game_launcher"

	// DefaultChunkSize bounds a single read from a local file feeding an upload.
	DefaultChunkSize = 64 * 1024
	// DownloadBufferSize is the largest chunk pulled from a response body at once.
	DownloadBufferSize = 1024 * 1024
	SocketBufferSize   = 1024 * 1024
)

const DefaultBridgeAddr = "127.0.0.1:47615"

// DefaultFrontendOrigins are the webview origins the bundled frontend loads from.
var DefaultFrontendOrigins = []string{"tauri://localhost", "http://tauri.localhost", "https://tauri.localhost"}
