// Command notifyffi builds the notification core as a C shared library:
//
//	go build -buildmode=c-shared -o localnotify.dll ./cmd/notifyffi
//
// Every plugin is addressed by the handle createPlugin returns, and every array
// or struct it returns must be released with the matching free call.
package main

func main() {}
