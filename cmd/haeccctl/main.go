// Command haeccctl sends commands to a running haeccstable.
//
//	haeccctl ping
//	haeccctl declare_variable '{"var_type":"window_var","name":"main","value":[1280,720]}'
//	haeccctl -raw < script.ndjson
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/AaronLay10/Haeccstable/internal/ipc"
	"github.com/AaronLay10/Haeccstable/internal/router"
	"github.com/AaronLay10/Haeccstable/internal/version"
)

func main() {
	var (
		socketPath  = flag.String("socket", defaultSocket(), "command socket path")
		timeout     = flag.Duration("timeout", 5*time.Second, "per-request timeout")
		raw         = flag.Bool("raw", false, "send newline-delimited JSON from stdin")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: haeccctl [flags] <type> [json-data]\n       haeccctl [flags] -raw < commands.ndjson\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("haeccctl"))
		return
	}

	client, err := ipc.Dial(*socketPath, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "haeccctl: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	if *raw {
		os.Exit(sendLines(client, os.Stdin, os.Stdout))
	}

	if flag.NArg() < 1 || flag.NArg() > 2 {
		flag.Usage()
		os.Exit(2)
	}
	req := router.Request{Type: flag.Arg(0)}
	if flag.NArg() == 2 {
		if !json.Valid([]byte(flag.Arg(1))) {
			fmt.Fprintf(os.Stderr, "haeccctl: data is not valid JSON\n")
			os.Exit(2)
		}
		req.Data = json.RawMessage(flag.Arg(1))
	}

	resp, err := client.Send(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "haeccctl: %v\n", err)
		os.Exit(1)
	}
	out, _ := json.MarshalIndent(resp, "", "  ")
	fmt.Println(string(out))
	if !resp.OK() {
		os.Exit(1)
	}
}

// sendLines forwards each non-empty input line and prints each reply. The
// exit code is 1 if any reply was an error.
func sendLines(client *ipc.Client, in io.Reader, out io.Writer) int {
	code := 0
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), ipc.MaxMessageSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		reply, err := client.SendRaw(line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "haeccctl: %v\n", err)
			return 1
		}
		fmt.Fprintln(out, string(reply))

		var resp router.Response
		if json.Unmarshal(reply, &resp) != nil || !resp.OK() {
			code = 1
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "haeccctl: %v\n", err)
		return 1
	}
	return code
}

func defaultSocket() string {
	if p := os.Getenv("HAECCSTABLE_SOCKET"); p != "" {
		return p
	}
	return filepath.Join(os.TempDir(), "haeccstable.sock")
}
