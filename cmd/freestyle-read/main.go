// Command freestyle-read connects to a FreeStyle meter and issues a single
// text-channel command, printing either the raw reply or its multirecord
// rows.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/barnettlynn/freestyle-hid/internal/config"
	"github.com/barnettlynn/freestyle-hid/pkg/freestyle"
)

const configFileName = "config.yaml"

func main() {
	verbose := flag.Bool("v", false, "enable debug logging")
	logFormat := flag.String("log-format", "text", "log format: text or json")
	command := flag.String("command", "", "text-channel command to send (required)")
	multirecord := flag.Bool("multirecord", false, "parse the reply as a multirecord CSV stream")
	textTypeOut := flag.Int("text-type-out", 0x60, "outbound text-channel message type")
	textTypeIn := flag.Int("text-type-in", 0x60, "inbound text-channel message type")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if *logFormat == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, opts)))
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
	}

	if *command == "" {
		fmt.Fprintln(os.Stderr, "Error: -command is required")
		flag.Usage()
		os.Exit(1)
	}

	configPath, err := defaultConfigPath()
	if err != nil {
		log.Fatalf("resolve config path failed: %v", err)
	}
	fmt.Printf("Using config: %s\n", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if cfg.HasKeyOverrides() {
		authEnc, err := freestyle.LoadKeyHexFile(cfg.Keys.AuthEncKeyFile)
		if err != nil {
			log.Fatalf("auth enc key file invalid: %v", err)
		}
		authMac, err := freestyle.LoadKeyHexFile(cfg.Keys.AuthMacKeyFile)
		if err != nil {
			log.Fatalf("auth mac key file invalid: %v", err)
		}
		sessEnc, err := freestyle.LoadKeyHexFile(cfg.Keys.SessEncKeyFile)
		if err != nil {
			log.Fatalf("session enc key file invalid: %v", err)
		}
		sessMac, err := freestyle.LoadKeyHexFile(cfg.Keys.SessMacKeyFile)
		if err != nil {
			log.Fatalf("session mac key file invalid: %v", err)
		}
		freestyle.SetEncryptedProfileMasterKeys(authEnc, authMac, sessEnc, sessMac)
	}

	device, err := freestyle.OpenDevice(cfg.Device.Path, cfg.Device.ProductID)
	if err != nil {
		log.Fatalf("open device failed: %v", err)
	}

	session := freestyle.NewSession(device, cfg.Device.ProductID, byte(*textTypeOut), byte(*textTypeIn), cfg.Device.Encoding)
	defer session.Close()

	fmt.Println("Connecting...")
	if err := session.Connect(); err != nil {
		log.Fatalf("connect failed: %v", err)
	}

	if *multirecord {
		records, err := session.QueryMultirecord([]byte(*command))
		if err != nil {
			log.Fatalf("query failed: %v", err)
		}
		for {
			row, ok, err := records.Next()
			if err != nil {
				log.Fatalf("record parse failed: %v", err)
			}
			if !ok {
				break
			}
			fmt.Println(row)
		}
		return
	}

	reply, err := session.SendTextCommand([]byte(*command))
	if err != nil {
		log.Fatalf("command failed: %v", err)
	}
	fmt.Print(reply)
}

func defaultConfigPath() (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", err
	}
	exeConfigPath := filepath.Join(filepath.Dir(exePath), configFileName)
	if fileExists(exeConfigPath) {
		return exeConfigPath, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return exeConfigPath, nil
	}
	cwdConfigPath := filepath.Join(cwd, configFileName)
	if fileExists(cwdConfigPath) {
		return cwdConfigPath, nil
	}
	return exeConfigPath, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
