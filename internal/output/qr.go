package output

import (
	"io"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"rsc.io/qr"

	"github.com/mrz1836/warden/internal/keys"
)

// QRConfig configures QR code rendering.
type QRConfig struct {
	// Level is the error correction level.
	Level qr.Level

	// QuietZone is the number of empty modules around the code.
	QuietZone int

	// Force renders plain text blocks when w is not a terminal.
	Force bool
}

// DefaultQRConfig returns the settings used for addresses.
func DefaultQRConfig() QRConfig {
	return QRConfig{Level: qr.M, QuietZone: 2}
}

// AddressURI is the payload encoded for an address. Ethereum-style
// addresses use an EIP-681 URI so wallets recognise them.
func AddressURI(curve keys.Curve, address string) string {
	if curve == keys.EthSecp256k1 {
		return "ethereum:" + keys.ChecksumAddress(address)
	}
	return address
}

// RenderQR writes data as a QR code. On a terminal it uses half-block
// glyphs; elsewhere nothing is written unless cfg.Force is set.
func RenderQR(w io.Writer, data string, cfg QRConfig) error {
	if IsTerminal(w) {
		qrterminal.GenerateWithConfig(data, qrterminal.Config{
			Level:          cfg.Level,
			Writer:         w,
			QuietZone:      cfg.QuietZone,
			HalfBlocks:     true,
			BlackChar:      qrterminal.BLACK_BLACK,
			WhiteChar:      qrterminal.WHITE_WHITE,
			WhiteBlackChar: qrterminal.WHITE_BLACK,
			BlackWhiteChar: qrterminal.BLACK_WHITE,
		})
		return nil
	}
	if !cfg.Force {
		return nil
	}
	text, err := QRText(data, cfg)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, text)
	return err
}

// QRText renders data with "##" for dark modules and two spaces for light.
func QRText(data string, cfg QRConfig) (string, error) {
	code, err := qr.Encode(data, cfg.Level)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for y := -cfg.QuietZone; y < code.Size+cfg.QuietZone; y++ {
		for x := -cfg.QuietZone; x < code.Size+cfg.QuietZone; x++ {
			if code.Black(x, y) {
				sb.WriteString("##")
			} else {
				sb.WriteString("  ")
			}
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}
