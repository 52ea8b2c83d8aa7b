package fetch

import "encoding/json"

func encodePage(p *Page) ([]byte, error) {
	return json.Marshal(p)
}

func decodePage(data []byte) (*Page, error) {
	var p Page
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
