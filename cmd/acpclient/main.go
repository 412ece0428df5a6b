// acpclient is a CLI tool for testing ACP gateway flows.
// Each command performs a single operation, making it composable for scripts.
//
// Commands:
//
//	acpclient keygen [-out FILE]
//	acpclient discover -gateway URL -agent ID -hmac HEX -entity ID -checkin DATE -checkout DATE
//	acpclient negotiate -gateway URL -agent ID -hmac HEX -entity ID -action open|accept|counter|abandon [-tx ID] [-price N]
//	acpclient execute -gateway URL -agent ID -hmac HEX -entity ID -checkin DATE -checkout DATE -room TYPE
//	acpclient tx -gateway URL -id <transaction-id>
//	acpclient pause|resume -gateway URL -entity ID [-reason TEXT]
//
// Examples:
//
//	acpclient keygen -out agent.key
//	acpclient discover -agent corp-agent -hmac $SECRET -entity hotel-1 -checkin 2026-09-01 -checkout 2026-09-03
//	TX=$(acpclient negotiate -agent corp-agent -hmac $SECRET -entity hotel-1 -action open -checkin 2026-09-01 -checkout 2026-09-03 -q)
//	acpclient negotiate -agent corp-agent -hmac $SECRET -entity hotel-1 -action counter -tx $TX -price 21000
//	acpclient negotiate -agent corp-agent -hmac $SECRET -entity hotel-1 -action accept -tx $TX
package main

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"acp-gateway/internal/model"
	"acp-gateway/internal/trust"
)

var client = &http.Client{Timeout: 30 * time.Second}

// Global flags (apply to all commands)
var (
	gatewayURL string
	agentID    string
	hmacHex    string
	keyHex     string
	entityID   string
	domain     string
	requestID  string
	profileURL string
	quiet      bool
	noColor    bool
	verbose    bool
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow = "", "", "", ""
	colorBlue, colorCyan, colorGray, colorBold = "", "", "", ""
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "keygen":
		runKeygen(args)
	case "discover":
		runDiscover(args)
	case "negotiate":
		runNegotiate(args)
	case "execute":
		runExecute(args)
	case "tx":
		runTx(args)
	case "pause":
		runControl(args, "pause")
	case "resume":
		runControl(args, "resume")
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `acpclient - ACP gateway test tool

Usage:
  acpclient <command> [options]

Commands:
  keygen     Generate an ed25519 keypair for agent registration
  discover   Query room availability for a stay
  negotiate  Open, counter, accept, or abandon a negotiation
  execute    Book at the quoted price without negotiating
  tx         Get transaction state and offer history
  pause      Take a property out of rotation
  resume     Put a property back into rotation

Examples:
  # Discover availability
  acpclient discover -agent corp-agent -hmac $SECRET -entity hotel-1 \
    -checkin 2026-09-01 -checkout 2026-09-03

  # Open a negotiation, capture the transaction ID
  TX=$(acpclient negotiate -agent corp-agent -hmac $SECRET -entity hotel-1 \
    -action open -checkin 2026-09-01 -checkout 2026-09-03 -q)

  # Counter, then accept the standing offer
  acpclient negotiate -agent corp-agent -hmac $SECRET -entity hotel-1 -action counter -tx $TX -price 21000
  acpclient negotiate -agent corp-agent -hmac $SECRET -entity hotel-1 -action accept -tx $TX

Run 'acpclient <command> -h' for command-specific options.
`)
}

// commonFlags registers flags shared by every envelope-sending command.
func commonFlags(fs *flag.FlagSet) {
	fs.StringVar(&gatewayURL, "gateway", "http://localhost:8080", "ACP gateway base URL")
	fs.StringVar(&agentID, "agent", "", "Agent ID (required)")
	fs.StringVar(&hmacHex, "hmac", "", "Hex HMAC shared secret for signing")
	fs.StringVar(&keyHex, "key", "", "Hex ed25519 private key for signing")
	fs.StringVar(&entityID, "entity", "", "Target property entity ID")
	fs.StringVar(&domain, "domain", "lodging", "Target domain")
	fs.StringVar(&requestID, "request-id", "", "Request ID (generated if not set)")
	fs.StringVar(&profileURL, "profile", "https://acpclient.invalid/profile", "Agent profile URL for the ACP-Agent header")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - only output the key result")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show full request/response")
}

// =============================================================================
// KEYGEN COMMAND
// =============================================================================

func runKeygen(args []string) {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	var outFile string
	fs.StringVar(&outFile, "out", "", "Write the private key to this file instead of stdout")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - only output the public key")
	fs.Parse(args)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		fatal("Failed to generate key: %v", err)
	}

	pubHex := hex.EncodeToString(pub)
	privHex := hex.EncodeToString(priv)

	if outFile != "" {
		if err := os.WriteFile(outFile, []byte(privHex+"\n"), 0o600); err != nil {
			fatal("Failed to write key file: %v", err)
		}
		if quiet {
			fmt.Println(pubHex)
			return
		}
		printSuccess("Private key written to %s", outFile)
		fmt.Printf("  Public key (register this): %s%s%s\n", colorGreen, pubHex, colorReset)
		return
	}

	if quiet {
		fmt.Println(pubHex)
		return
	}
	fmt.Printf("Public key:  %s%s%s\n", colorGreen, pubHex, colorReset)
	fmt.Printf("Private key: %s%s%s\n", colorYellow, privHex, colorReset)
}

// =============================================================================
// DISCOVER COMMAND
// =============================================================================

func runDiscover(args []string) {
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	commonFlags(fs)
	var checkIn, checkOut, roomType string
	var guests int
	fs.StringVar(&checkIn, "checkin", "", "Check-in date YYYY-MM-DD (required)")
	fs.StringVar(&checkOut, "checkout", "", "Check-out date YYYY-MM-DD (required)")
	fs.StringVar(&roomType, "room", "", "Preferred room type")
	fs.IntVar(&guests, "guests", 2, "Guest count")
	fs.Parse(args)
	setup(fs, checkIn != "" && checkOut != "")

	payload := model.DiscoverPayload{
		Terms: &model.StayTerms{CheckIn: checkIn, CheckOut: checkOut, RoomType: roomType, Guests: guests},
	}

	resp := submit(model.IntentDiscover, payload, 0)

	if quiet {
		out, _ := json.Marshal(resp.Availability)
		fmt.Println(string(out))
		return
	}
	if len(resp.Availability) == 0 {
		printWarning("No availability for %s to %s", checkIn, checkOut)
		return
	}
	printSuccess("%d room option(s)", len(resp.Availability))
	for _, opt := range resp.Availability {
		fmt.Printf("  %s%-12s%s %s (%d left)\n",
			colorBold, opt.RoomType, colorReset, formatMinor(opt.Price, opt.Currency), opt.Available)
	}
}

// =============================================================================
// NEGOTIATE COMMAND
// =============================================================================

func runNegotiate(args []string) {
	fs := flag.NewFlagSet("negotiate", flag.ExitOnError)
	commonFlags(fs)
	var action, txID, checkIn, checkOut, roomType string
	var price, budget int64
	var guests int
	var dryRun bool
	fs.StringVar(&action, "action", "", "open, accept, counter, or abandon (required)")
	fs.StringVar(&txID, "tx", "", "Transaction ID (required for accept/counter/abandon)")
	fs.StringVar(&checkIn, "checkin", "", "Check-in date YYYY-MM-DD (open only)")
	fs.StringVar(&checkOut, "checkout", "", "Check-out date YYYY-MM-DD (open only)")
	fs.StringVar(&roomType, "room", "", "Preferred room type (open only)")
	fs.IntVar(&guests, "guests", 2, "Guest count (open only)")
	fs.Int64Var(&price, "price", 0, "Counter price in minor units (counter only)")
	fs.Int64Var(&budget, "budget", 0, "Budget ceiling in minor units")
	fs.BoolVar(&dryRun, "dry-run", false, "Validate the booking without creating it (accept only)")
	fs.Parse(args)
	setup(fs, action != "")

	payload := model.NegotiatePayload{
		Action:        model.NegotiateAction(action),
		TransactionID: txID,
		CounterPrice:  price,
		DryRun:        dryRun,
	}
	if action == "open" {
		payload.Terms = &model.StayTerms{CheckIn: checkIn, CheckOut: checkOut, RoomType: roomType, Guests: guests}
	}

	resp := submit(model.IntentNegotiate, payload, budget)

	if quiet {
		fmt.Println(resp.TransactionID)
		return
	}
	printOutcome(resp)
}

// =============================================================================
// EXECUTE COMMAND
// =============================================================================

func runExecute(args []string) {
	fs := flag.NewFlagSet("execute", flag.ExitOnError)
	commonFlags(fs)
	var checkIn, checkOut, roomType string
	var guests int
	var budget int64
	var dryRun bool
	fs.StringVar(&checkIn, "checkin", "", "Check-in date YYYY-MM-DD (required)")
	fs.StringVar(&checkOut, "checkout", "", "Check-out date YYYY-MM-DD (required)")
	fs.StringVar(&roomType, "room", "", "Room type")
	fs.IntVar(&guests, "guests", 2, "Guest count")
	fs.Int64Var(&budget, "budget", 0, "Budget ceiling in minor units")
	fs.BoolVar(&dryRun, "dry-run", false, "Validate the booking without creating it")
	fs.Parse(args)
	setup(fs, checkIn != "" && checkOut != "")

	payload := model.ExecutePayload{
		Terms:  model.StayTerms{CheckIn: checkIn, CheckOut: checkOut, RoomType: roomType, Guests: guests},
		DryRun: dryRun,
	}

	resp := submit(model.IntentExecute, payload, budget)

	if quiet {
		fmt.Println(resp.TransactionID)
		return
	}
	printOutcome(resp)
}

// =============================================================================
// TX COMMAND
// =============================================================================

func runTx(args []string) {
	fs := flag.NewFlagSet("tx", flag.ExitOnError)
	commonFlags(fs)
	var txID string
	fs.StringVar(&txID, "id", "", "Transaction ID (required)")
	fs.Parse(args)
	setup(fs, txID != "")

	body := doRequest("GET", "/transactions/"+url.PathEscape(txID), nil)
	if quiet {
		fmt.Println(string(body))
	}
}

// =============================================================================
// CONTROL COMMANDS
// =============================================================================

func runControl(args []string, action string) {
	fs := flag.NewFlagSet(action, flag.ExitOnError)
	commonFlags(fs)
	var reason string
	fs.StringVar(&reason, "reason", "", "Operator reason for the change")
	fs.Parse(args)
	setup(fs, entityID != "")

	reqBody, _ := json.Marshal(map[string]string{"reason": reason})
	doRequest("POST", "/control/properties/"+url.PathEscape(entityID)+"/"+action, reqBody)
	printSuccess("Property %s %sd", entityID, action)
}

// =============================================================================
// ENVELOPE HELPERS
// =============================================================================

// setup applies the no-color flag and bails out with usage when a required
// flag is missing.
func setup(fs *flag.FlagSet, requiredOK bool) {
	if noColor {
		disableColors()
	}
	if !requiredOK {
		fs.Usage()
		os.Exit(1)
	}
}

// submit builds, signs, and posts a request envelope, returning the parsed
// intent response.
func submit(intent model.IntentType, payload any, budget int64) *model.IntentResponse {
	if agentID == "" {
		fatal("-agent is required")
	}
	if hmacHex == "" && keyHex == "" {
		fatal("one of -hmac or -key is required for signing")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		fatal("Failed to marshal payload: %v", err)
	}

	reqID := requestID
	if reqID == "" {
		reqID = "req_" + uuid.NewString()
	}

	env := &model.RequestEnvelope{
		ProtocolVersion: model.ProtocolVersion,
		RequestID:       reqID,
		AgentID:         agentID,
		TargetDomain:    domain,
		TargetEntityID:  entityID,
		IntentType:      intent,
		IntentPayload:   raw,
	}
	if budget > 0 {
		env.Constraints = &model.Constraints{BudgetMax: budget}
	}

	if err := sign(env); err != nil {
		fatal("Failed to sign envelope: %v", err)
	}

	reqBody, err := json.Marshal(env)
	if err != nil {
		fatal("Failed to marshal envelope: %v", err)
	}

	body := doRequest("POST", "/acp/requests", reqBody)

	var resp model.IntentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		fatal("Failed to parse response: %v", err)
	}
	return &resp
}

// sign attaches an agent signature using whichever key was supplied.
func sign(env *model.RequestEnvelope) error {
	if keyHex != "" {
		priv, err := hex.DecodeString(strings.TrimSpace(keyHex))
		if err != nil {
			return fmt.Errorf("decoding private key hex: %w", err)
		}
		if len(priv) != ed25519.PrivateKeySize {
			return fmt.Errorf("ed25519 private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(priv))
		}
		sig, err := trust.SignEd25519(env, ed25519.PrivateKey(priv))
		if err != nil {
			return err
		}
		env.AgentSignature = sig
		return nil
	}

	secret, err := hex.DecodeString(strings.TrimSpace(hmacHex))
	if err != nil {
		return fmt.Errorf("decoding HMAC secret hex: %w", err)
	}
	sig, err := trust.SignHMAC(env, secret)
	if err != nil {
		return err
	}
	env.AgentSignature = sig
	return nil
}

// =============================================================================
// HTTP HELPERS
// =============================================================================

func doRequest(method, path string, reqJSON []byte) []byte {
	var reqBody io.Reader
	if reqJSON != nil {
		reqBody = bytes.NewReader(reqJSON)
	}

	req, err := http.NewRequest(method, gatewayURL+path, reqBody)
	if err != nil {
		fatal("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("ACP-Agent", fmt.Sprintf("profile=%q;client=%q", profileURL, "acpclient/1.0.0"))

	if !quiet {
		printRequest(method, path, reqJSON)
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)
	if err != nil {
		fatal("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		fatal("Failed to read response: %v", err)
	}

	if !quiet {
		printResponse(resp.StatusCode, respBody, duration)
	}

	if resp.StatusCode >= 400 {
		fatal("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func printOutcome(resp *model.IntentResponse) {
	if resp.Duplicate {
		printInfo("Replayed a previously stored result")
	}

	switch resp.State {
	case model.StateConfirmed:
		if resp.DryRun {
			printSuccess("Dry run: validation %s", resp.Validation)
		} else if resp.Booking != nil {
			printSuccess("Booking confirmed: %s at %s",
				resp.Booking.ConfirmationCode, formatMinor(resp.Booking.ChargedPrice, resp.Booking.Currency))
		} else {
			printSuccess("Confirmed")
		}
	case model.StateNegotiating:
		if resp.Offer != nil {
			fmt.Printf("%s⇄ Round %d%s counter-offer: %s%s%s (expires %s)\n",
				colorCyan, resp.Round, colorReset,
				colorBold, formatMinor(resp.Offer.Price, resp.Offer.Currency), colorReset,
				resp.Offer.ExpiresAt.Format(time.RFC3339))
		} else {
			printInfo("Negotiating, round %d", resp.Round)
		}
	case model.StateRejected:
		printWarning("Rejected: %s", resp.Reason)
	case model.StateFailed:
		printError("Failed: %s", resp.Reason)
	default:
		printInfo("State: %s", resp.State)
	}

	if resp.TransactionID != "" {
		fmt.Printf("  Transaction: %s%s%s\n", colorBlue, resp.TransactionID, colorReset)
	}
}

func printRequest(method, path string, body []byte) {
	fmt.Printf("\n%s▶ REQUEST%s %s%s %s%s\n", colorYellow, colorReset, colorBold, method, path, colorReset)
	if body != nil {
		printJSON(body, "  ")
	}
}

func printResponse(status int, body []byte, duration time.Duration) {
	statusColor := colorGreen
	if status >= 400 {
		statusColor = colorRed
	}
	fmt.Printf("\n%s◀ RESPONSE%s %s%d%s (%v)\n", colorCyan, colorReset, statusColor, status, colorReset, duration)
	printJSON(body, "  ")
}

func printJSON(data []byte, prefix string) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, prefix, "  "); err != nil {
		fmt.Printf("%s%s\n", prefix, string(data))
		return
	}

	output := pretty.String()
	if !verbose {
		lines := strings.Split(output, "\n")
		if len(lines) > 30 {
			lines = append(lines[:25], fmt.Sprintf("%s  %s(%d more lines, use -v for full output)%s", prefix, colorGray, len(lines)-25, colorReset))
			output = strings.Join(lines, "\n")
		}
	}
	fmt.Println(output)
}

func printSuccess(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printError(format string, args ...interface{}) {
	fmt.Printf("%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
}

func printWarning(format string, args ...interface{}) {
	fmt.Printf("%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s→ %s%s\n", colorGray, fmt.Sprintf(format, args...), colorReset)
	}
}

func formatMinor(v int64, currency string) string {
	if currency == "" {
		currency = "USD"
	}
	return fmt.Sprintf("%.2f %s", float64(v)/100, currency)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
