package shared

import (
	"net/rpc"

	"github.com/hashicorp/go-plugin"
)

// Scanner is the contract of scanner plugins used to rescan patched code.
type Scanner interface {
	Scan(args ScannerScanRequest) (ScannerScanResponse, error)
}

// ScannerScanRequest represents a single scan request.
type ScannerScanRequest struct {
	TargetPath     string   // Path to the target to scan
	ResultsPath    string   // Path to save the results of the scan
	ConfigPath     string   // Path to the configuration file for the scanner
	ReportFormat   string   // Format of the report to generate (e.g., json, sarif)
	Category       string   // Vulnerability category the scan may be narrowed to
	AdditionalArgs []string // Additional arguments for the scanner
}

type ScannerScanResponse struct {
	ResultsPath string
}

type ScannerRPCClient struct{ client *rpc.Client }

func (g *ScannerRPCClient) Scan(req ScannerScanRequest) (ScannerScanResponse, error) {
	var resp ScannerScanResponse
	if err := g.client.Call("Plugin.Scan", req, &resp); err != nil {
		return resp, err
	}
	return resp, nil
}

type ScannerRPCServer struct {
	Impl Scanner
}

func (s *ScannerRPCServer) Scan(args ScannerScanRequest, resp *ScannerScanResponse) error {
	var err error
	*resp, err = s.Impl.Scan(args)
	return err
}

type ScannerPlugin struct {
	Impl Scanner
}

func (p *ScannerPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &ScannerRPCServer{Impl: p.Impl}, nil
}

func (ScannerPlugin) Client(b *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &ScannerRPCClient{client: c}, nil
}
