// Package main implements the ssb-node CLI: a thin wrapper over pkg/node
// for running a peer, inspecting its local identity, and driving a handful
// of one-shot operations against its on-disk state. Grounded on
// cmd/bee/main.go's hand-parsed os.Args subcommand dispatch (no flag
// parsing library, per SPEC_FULL.md §10) and command set.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/WebFirstLanguage/ssbnet/pkg/discovery"
	"github.com/WebFirstLanguage/ssbnet/pkg/identity"
	"github.com/WebFirstLanguage/ssbnet/pkg/keystore"
	"github.com/WebFirstLanguage/ssbnet/pkg/node"
	"github.com/WebFirstLanguage/ssbnet/pkg/typedcontent"
)

// Build-time variables set by ldflags.
var (
	version    = "dev"
	buildTime  = "unknown"
	commitHash = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "version", "--version", "-v":
		printVersion()
	case "help", "--help", "-h":
		printUsage()
	case "keygen":
		err = keygenCommand(os.Args[2:])
	case "whoami":
		err = whoamiCommand(os.Args[2:])
	case "start":
		err = startCommand(os.Args[2:])
	case "publish":
		err = publishCommand(os.Args[2:])
	case "get":
		err = getCommand(os.Args[2:])
	case "connect":
		err = connectCommand(os.Args[2:])
	default:
		fmt.Printf("Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("ssb-node %s\n", version)
	fmt.Printf("Built: %s\n", buildTime)
	fmt.Printf("Commit: %s\n", commitHash)
}

func printUsage() {
	fmt.Printf(`ssb-node v%s - gossip-style social messaging peer

Usage:
  ssb-node <command> [options]

Commands:
  keygen                         Generate a new identity, saved under $HOME/.ssb/secret
  whoami                         Print the local identity's id
  start [--listen addr]          Run a peer, accepting connections until interrupted
  publish <text>                 Sign and append a "post" message to the local feed
  get <msg-id>                   Print a previously published or replicated message by id
  connect <addr> <pubkey>        Dial a peer, perform the handshake, and print its id
  version                        Show version information
  help                           Show this help message

Options (start):
  --listen <addr>   Address to accept connections on (default 127.0.0.1:8008)
  --data <dir>      Storage directory for the feed log and replicas (default ./ssbnet-data)

`, version)
}

// flagValue scans args for "--name value" and returns value, or def if
// absent.
func flagValue(args []string, name, def string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "--"+name {
			return args[i+1]
		}
	}
	return def
}

func defaultKeyPath() (string, error) {
	return keystore.DefaultPath()
}

func loadOrCreateIdentity() (*identity.Identity, error) {
	path, err := defaultKeyPath()
	if err != nil {
		return nil, err
	}
	return keystore.LoadOrCreate(path)
}

func keygenCommand(args []string) error {
	path, err := defaultKeyPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Warning: identity already exists at %s\n", path)
		fmt.Print("Overwrite? (y/N): ")
		var resp string
		fmt.Scanln(&resp)
		if resp != "y" && resp != "Y" {
			fmt.Println("keygen cancelled")
			return nil
		}
	}
	id, err := identity.GenerateIdentity()
	if err != nil {
		return fmt.Errorf("generate identity: %w", err)
	}
	if err := keystore.Save(path, id); err != nil {
		return err
	}
	fmt.Printf("New identity saved to %s\n", path)
	fmt.Printf("id: %s\n", id.ID)
	return nil
}

func whoamiCommand(args []string) error {
	id, err := loadOrCreateIdentity()
	if err != nil {
		return err
	}
	fmt.Println(id.ID)
	return nil
}

func startCommand(args []string) error {
	id, err := loadOrCreateIdentity()
	if err != nil {
		return err
	}

	listenAddr := flagValue(args, "listen", "127.0.0.1:8008")
	dataDir := flagValue(args, "data", "./ssbnet-data")

	cfg := &node.Config{
		ListenAddr: listenAddr,
		StorageDir: dataDir,
		Logger:     func(format string, fargs ...interface{}) { fmt.Printf(format+"\n", fargs...) },
	}
	n, err := node.New(id, cfg)
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("start node: %w", err)
	}

	broadcaster := discovery.NewBroadcaster(discovery.BroadcasterConfig{PubKey: id.Public, Port: listenPort(listenAddr)})
	if err := broadcaster.Start(ctx); err != nil {
		fmt.Printf("discovery broadcast disabled: %v\n", err)
	} else {
		defer broadcaster.Stop()
	}

	fmt.Printf("id: %s\n", id.ID)
	fmt.Printf("listening on %s\n", listenAddr)
	fmt.Println("running, press Ctrl+C to stop")

	<-ctx.Done()
	fmt.Println("shutting down...")
	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return n.Stop(stopCtx)
}

func publishCommand(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: ssb-node publish <text>")
	}
	id, err := loadOrCreateIdentity()
	if err != nil {
		return err
	}
	dataDir := flagValue(args, "data", "./ssbnet-data")
	n, err := node.New(id, &node.Config{ListenAddr: "", StorageDir: dataDir})
	if err != nil {
		return fmt.Errorf("open node: %w", err)
	}
	msg, err := n.PublishTyped(typedcontent.Post{Text: args[0]})
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	fmt.Println(msg.ID())
	return nil
}

func getCommand(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: ssb-node get <msg-id>")
	}
	id, err := loadOrCreateIdentity()
	if err != nil {
		return err
	}
	dataDir := flagValue(args, "data", "./ssbnet-data")
	n, err := node.New(id, &node.Config{ListenAddr: "", StorageDir: dataDir})
	if err != nil {
		return fmt.Errorf("open node: %w", err)
	}
	msg, ok := n.Message(args[0])
	if !ok {
		return fmt.Errorf("message not found: %s", args[0])
	}
	body, err := json.MarshalIndent(struct {
		ID        string `json:"id"`
		Author    string `json:"author"`
		Sequence  int64  `json:"sequence"`
		Timestamp float64 `json:"timestamp"`
	}{msg.ID(), msg.Author(), msg.Sequence(), msg.Timestamp()}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(body))
	return nil
}

func connectCommand(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: ssb-node connect <addr> <pubkey>")
	}
	id, err := loadOrCreateIdentity()
	if err != nil {
		return err
	}
	peerPub, err := identity.DecodePublicKeyWithSuffix(args[1])
	if err != nil {
		return fmt.Errorf("decode peer public key: %w", err)
	}

	dataDir := flagValue(args, "data", "./ssbnet-data")
	n, err := node.New(id, &node.Config{ListenAddr: "", StorageDir: dataDir})
	if err != nil {
		return fmt.Errorf("open node: %w", err)
	}

	p, err := n.Connect(context.Background(), args[0], peerPub)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	fmt.Printf("connected to %s\n", p.RemoteID())
	return nil
}

const shutdownGrace = 10 * time.Second

func listenPort(addr string) int {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			port := 0
			for _, c := range addr[i+1:] {
				if c < '0' || c > '9' {
					return 0
				}
				port = port*10 + int(c-'0')
			}
			return port
		}
	}
	return 0
}
