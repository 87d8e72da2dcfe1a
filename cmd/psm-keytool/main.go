package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"psmswap/crypto"
	"psmswap/pool"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "generate":
		err = runGenerate(os.Args[2:])
	case "address":
		err = runAddress(os.Args[2:])
	case "sign-rate":
		err = runSignRate(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: psm-keytool <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  generate    create a new authority key and save it to a keystore file")
	fmt.Println("  address     print the bech32 address held in a keystore file")
	fmt.Println("  sign-rate   sign a rate update payload for submission to psmd")
	fmt.Println()
	fmt.Println("The keystore passphrase is read from PSM_KEYSTORE_PASSPHRASE.")
}

func passphrase() (string, error) {
	value, ok := os.LookupEnv("PSM_KEYSTORE_PASSPHRASE")
	if !ok || value == "" {
		return "", fmt.Errorf("PSM_KEYSTORE_PASSPHRASE must be set")
	}
	return value, nil
}

func runGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	keystorePath := fs.String("keystore", "authority.keystore", "destination keystore file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pass, err := passphrase()
	if err != nil {
		return err
	}

	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	if err := crypto.SaveToKeystore(*keystorePath, key, pass); err != nil {
		return fmt.Errorf("save keystore: %w", err)
	}
	fmt.Printf("Saved new authority key to %s\n", *keystorePath)
	fmt.Printf("Address: %s\n", key.PubKey().Address().String())
	return nil
}

func runAddress(args []string) error {
	fs := flag.NewFlagSet("address", flag.ExitOnError)
	keystorePath := fs.String("keystore", "authority.keystore", "keystore file to read")
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, err := loadKey(*keystorePath)
	if err != nil {
		return err
	}
	fmt.Println(key.PubKey().Address().String())
	return nil
}

func runSignRate(args []string) error {
	fs := flag.NewFlagSet("sign-rate", flag.ExitOnError)
	keystorePath := fs.String("keystore", "authority.keystore", "keystore file holding the authority key")
	tokenA := fs.String("token-a", "", "pool token A symbol")
	tokenB := fs.String("token-b", "", "pool token B symbol")
	label := fs.String("label", "main", "pool deployment label")
	ssr := fs.String("ssr", "", "per-second rate, ray-scaled decimal")
	chi := fs.String("chi", "", "rate accumulator, ray-scaled decimal")
	rho := fs.Uint64("rho", 0, "checkpoint timestamp, unix seconds (default: now)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*tokenA) == "" || strings.TrimSpace(*tokenB) == "" {
		return fmt.Errorf("token-a and token-b are required")
	}
	checkpoint := *rho
	if checkpoint == 0 {
		checkpoint = uint64(time.Now().Unix())
	}

	key, err := loadKey(*keystorePath)
	if err != nil {
		return err
	}
	poolID := pool.DerivePoolID(*tokenA, *tokenB, *label)
	update, err := pool.NewRateUpdate(pool.RateUpdateDomainV1, poolID, *ssr, *chi, checkpoint, nil)
	if err != nil {
		return err
	}
	if err := update.Sign(key); err != nil {
		return fmt.Errorf("sign update: %w", err)
	}

	payload := map[string]any{
		"ssr":       update.SSR.Dec(),
		"rho":       update.Rho,
		"chi":       update.Chi.Dec(),
		"signature": hex.EncodeToString(update.Signature),
	}
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}

func loadKey(path string) (*crypto.PrivateKey, error) {
	pass, err := passphrase()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return nil, fmt.Errorf("load keystore: %w", err)
	}
	return key, nil
}
