// Command hdkeytool derives and encodes BIP32 extended keys. It reads
// a seed or a serialized extended key, optionally derives along a
// path, and prints the result as a textual description, base58, or
// tagged-CBOR.
package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bcfoundation/hdkeycore/account"
	"github.com/bcfoundation/hdkeycore/bip32"
	"github.com/bcfoundation/hdkeycore/hdkey"
	"github.com/bcfoundation/hdkeycore/useinfo"
)

var (
	seedHex     = flag.String("seed", "", "hex-encoded BIP39 seed for a new master key")
	base58In    = flag.String("base58", "", "a serialized extended key (xprv/xpub/tprv/tpub) to load instead of -seed")
	network     = flag.String("network", "mainnet", "mainnet or testnet")
	path        = flag.String("path", "", "derivation path, e.g. \"m/84'/0'/0'\" or \"0/7\"")
	cborOut     = flag.Bool("cbor", false, "print the tagged-CBOR encoding (hex) instead of the textual description")
	base58Out   = flag.Bool("base58out", false, "print base58 instead of the textual description")
	descriptor  = flag.String("descriptor", "", "script type for a single-key output descriptor (p2pkh, p2wpkh, p2sh-p2wpkh, p2tr), or \"account\" for the full bundle")
	accountNum  = flag.Uint("account", 0, "account index used by -descriptor")
)

var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

func main() {
	flag.Parse()
	if err := run(os.Stdout); err != nil {
		log.Error().Err(err).Msg("hdkeytool failed")
		os.Exit(1)
	}
}

func run(stdout io.Writer) error {
	ui := useinfo.Default
	switch *network {
	case "mainnet", "":
		ui.Network = useinfo.MainNet
	case "testnet":
		ui.Network = useinfo.TestNet
	default:
		return fmt.Errorf("unknown network %q", *network)
	}

	key, err := loadKey(ui)
	if err != nil {
		return err
	}
	log.Info().Bool("master", key.IsMaster()).Str("network", ui.Network.String()).Msg("loaded key")

	if *path != "" {
		p, err := bip32.Parse(strings.TrimPrefix(*path, "m/"))
		if err != nil {
			return fmt.Errorf("parsing -path: %w", err)
		}
		key, err = hdkey.DerivePath(key, nil, p, true, nil, nil, nil)
		if err != nil {
			return fmt.Errorf("deriving %s: %w", *path, err)
		}
		log.Info().Str("path", *path).Msg("derived child key")
	}

	if *descriptor != "" {
		return printDescriptor(stdout, key, ui)
	}
	return printKey(stdout, key)
}

func loadKey(ui useinfo.UseInfo) (*hdkey.HDKey, error) {
	switch {
	case *seedHex != "":
		seed, err := hex.DecodeString(*seedHex)
		if err != nil {
			return nil, fmt.Errorf("decoding -seed: %w", err)
		}
		k, err := hdkey.FromSeed(seed, &ui)
		if err != nil {
			return nil, fmt.Errorf("building master key: %w", err)
		}
		return k, nil
	case *base58In != "":
		k, err := hdkey.FromBase58(*base58In, hdkey.FromBase58Options{UseInfo: &ui})
		if err != nil {
			return nil, fmt.Errorf("parsing -base58: %w", err)
		}
		return k, nil
	default:
		return nil, errors.New("specify -seed or -base58")
	}
}

func printKey(stdout io.Writer, key *hdkey.HDKey) error {
	switch {
	case *cborOut:
		enc, err := key.Encode()
		if err != nil {
			return fmt.Errorf("encoding cbor: %w", err)
		}
		fmt.Fprintln(stdout, hex.EncodeToString(enc))
	case *base58Out:
		fmt.Fprintln(stdout, key.Base58())
	default:
		fmt.Fprintln(stdout, key.FullDescription())
	}
	return nil
}

func printDescriptor(stdout io.Writer, key *hdkey.HDKey, ui useinfo.UseInfo) error {
	if *descriptor == "account" {
		bundle, err := account.NewAccountBundle(key, ui.Network, uint32(*accountNum), []account.ScriptType{
			account.P2PKH, account.P2SH_P2WPKH, account.P2WPKH, account.P2TR,
		})
		if err != nil {
			return fmt.Errorf("building account bundle: %w", err)
		}
		if *cborOut {
			enc, err := bundle.Encode()
			if err != nil {
				return fmt.Errorf("encoding bundle: %w", err)
			}
			fmt.Fprintln(stdout, hex.EncodeToString(enc))
			return nil
		}
		for _, d := range bundle.Descriptors {
			fmt.Fprintf(stdout, "%s: %s\n", d.Type, d.Keys[0].Key.FullDescription())
		}
		return nil
	}
	t, err := parseScriptType(*descriptor)
	if err != nil {
		return err
	}
	p, err := account.StandardPath(t, ui.Network, uint32(*accountNum), false)
	if err != nil {
		return err
	}
	pub := useinfo.Public
	derived, err := hdkey.DerivePath(key, &pub, p, true, nil, nil, nil)
	if err != nil {
		return fmt.Errorf("deriving descriptor key: %w", err)
	}
	if *cborOut {
		enc, err := derived.Encode()
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, hex.EncodeToString(enc))
		return nil
	}
	fmt.Fprintln(stdout, derived.FullDescription())
	return nil
}

func parseScriptType(s string) (account.ScriptType, error) {
	switch s {
	case "p2pkh":
		return account.P2PKH, nil
	case "p2wpkh":
		return account.P2WPKH, nil
	case "p2sh-p2wpkh":
		return account.P2SH_P2WPKH, nil
	case "p2tr":
		return account.P2TR, nil
	default:
		return account.UnknownScript, fmt.Errorf("unknown -descriptor %q", s)
	}
}
