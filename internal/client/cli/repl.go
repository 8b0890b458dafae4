package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	Status(ctx context.Context) error
	ProcessCTD(ctx context.Context, sampleID string, files []string) error
	ProcessSequence(ctx context.Context, sampleID string, files []string) error
	Ammonia(ctx context.Context, sampleID string, value string) error
	Record(ctx context.Context, sampleID, dataType string) error
	Queue(ctx context.Context) error
	Reconcile(ctx context.Context) error
	Retry(ctx context.Context) error
	Sync(ctx context.Context) error
}

const helpText = `Available commands:
  status                        connectivity, sync and queue state
  ctd <sample> <file...>        process a CTD cast
  seq <sample> <file...>        process FASTQ reads
  ammonia <sample> [value]      store a manual ammonia reading
  record <sample> <type>        latest processing record
  queue                         list queued uploads
  reconcile                     drop queued uploads already in storage
  retry                         upload queued files now
  sync                          drain local changes to the backend
  exit | quit                   leave the program`

// readLine returns the next line without its newline. ok is false once the
// input is exhausted.
func readLine(reader *bufio.Reader) (line string, ok bool) {
	line, err := reader.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", false
	}
	return strings.TrimRight(line, "\r\n"), true
}

// runREPL reads commands from reader until EOF, "exit" or "quit", or until
// ctx is cancelled between commands. Handler errors are printed and the loop
// continues. Handlers that prompt must read from the same reader.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		if ctx.Err() != nil {
			return
		}
		printlnFn(fmt.Sprintf("poleshift %s> ", statusFn()))
		line, ok := readLine(reader)
		if !ok {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var err error
		switch cmd {
		case "help":
			printlnFn(helpText)

		case "status":
			err = a.Status(ctx)

		case "ctd", "seq":
			if len(args) < 2 {
				printlnFn("Usage:", cmd, "<sample> <file...>")
				continue
			}
			if cmd == "ctd" {
				err = a.ProcessCTD(ctx, args[0], args[1:])
			} else {
				err = a.ProcessSequence(ctx, args[0], args[1:])
			}

		case "ammonia":
			if len(args) < 1 {
				printlnFn("Usage: ammonia <sample> [value]")
				continue
			}
			value := ""
			if len(args) > 1 {
				value = args[1]
			}
			err = a.Ammonia(ctx, args[0], value)

		case "record":
			if len(args) != 2 {
				printlnFn("Usage: record <sample> <ctd|seq|ammonia>")
				continue
			}
			err = a.Record(ctx, args[0], args[1])

		case "queue":
			err = a.Queue(ctx)

		case "reconcile":
			err = a.Reconcile(ctx)

		case "retry":
			err = a.Retry(ctx)

		case "sync":
			err = a.Sync(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn("Error:", err)
		}
	}
}
