package market

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"nepse-mock-trader/internal/model"
)

// Catalog 股票目录: 切换股票时的初始行情
type Catalog map[string]model.Quote

type catalogFile struct {
	Instruments []instrumentEntry `yaml:"instruments"`
}

type instrumentEntry struct {
	Symbol        string  `yaml:"symbol"`
	LTP           float64 `yaml:"ltp"`
	Open          float64 `yaml:"open"`
	High          float64 `yaml:"high"`
	Low           float64 `yaml:"low"`
	PreviousClose float64 `yaml:"previous_close"`
	Volume        int64   `yaml:"volume"`
	Turnover      float64 `yaml:"turnover"`
	AvgPrice      float64 `yaml:"avg_price"`
}

// DefaultCatalog 内置目录, 只包含默认股票 NICA
func DefaultCatalog() Catalog {
	return Catalog{
		"NICA": {
			Symbol:        "NICA",
			LTP:           740.0,
			Open:          735.0,
			High:          752.0,
			Low:           730.0,
			PreviousClose: 732.0,
			Volume:        45020,
			Turnover:      35000000,
			AvgPrice:      742.5,
		},
	}
}

// LoadCatalog 从 yaml 文件读取股票目录, 并与内置目录合并
func LoadCatalog(path string) (Catalog, error) {
	catalog := DefaultCatalog()
	if path == "" {
		return catalog, nil
	}

	// 1. 读取文件
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog '%s': %w", path, err)
	}

	// 2. 解析 yaml
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog from YAML: %w", err)
	}

	// 3. 校验并合并
	for i, e := range file.Instruments {
		sym := strings.ToUpper(strings.TrimSpace(e.Symbol))
		if sym == "" {
			return nil, fmt.Errorf("instrument %d: symbol cannot be empty", i)
		}
		if e.LTP <= 0 {
			return nil, fmt.Errorf("instrument '%s': ltp must be positive", sym)
		}
		q := model.Quote{
			Symbol:        sym,
			LTP:           e.LTP,
			Open:          e.Open,
			High:          e.High,
			Low:           e.Low,
			PreviousClose: e.PreviousClose,
			Volume:        e.Volume,
			Turnover:      e.Turnover,
			AvgPrice:      e.AvgPrice,
		}
		// 缺省字段以 LTP 补齐
		if q.PreviousClose == 0 {
			q.PreviousClose = q.LTP
		}
		if q.Open == 0 {
			q.Open = q.PreviousClose
		}
		if q.High < q.LTP {
			q.High = q.LTP
		}
		if q.Low == 0 || q.Low > q.LTP {
			q.Low = q.LTP
		}
		if q.AvgPrice == 0 {
			q.AvgPrice = q.LTP
		}
		catalog[sym] = q
	}

	return catalog, nil
}
