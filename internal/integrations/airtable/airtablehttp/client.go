package airtablehttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/opsboard/opsboard/internal/integrations/airtable"
	"github.com/opsboard/opsboard/internal/models"
)

type Client struct {
	baseURL string
	apiKey  string
	baseID  string

	enviosTable    string
	registrosTable string

	httpc *http.Client
}

func New(baseURL, apiKey, baseID, enviosTable, registrosTable string) *Client {
	if baseURL == "" {
		baseURL = "https://api.airtable.com"
	}
	if enviosTable == "" {
		enviosTable = "Envios"
	}
	if registrosTable == "" {
		registrosTable = "Registros"
	}
	return &Client{
		baseURL:        baseURL,
		apiKey:         apiKey,
		baseID:         baseID,
		enviosTable:    enviosTable,
		registrosTable: registrosTable,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type record struct {
	ID          string         `json:"id"`
	CreatedTime time.Time      `json:"createdTime"`
	Fields      map[string]any `json:"fields"`
}

type listResp struct {
	Records []record `json:"records"`
	Offset  string   `json:"offset,omitempty"`
}

func (c *Client) ListEnvios(ctx context.Context) ([]*models.Envio, error) {
	recs, err := c.listAll(ctx, c.enviosTable)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Envio, 0, len(recs))
	for _, r := range recs {
		out = append(out, &models.Envio{
			ID:           r.ID,
			Numero:       fieldString(r.Fields, airtable.FieldNumero),
			Producto:     fieldString(r.Fields, airtable.FieldProducto),
			Destinatario: fieldString(r.Fields, airtable.FieldDestinatario),
			Estado:       fieldString(r.Fields, airtable.FieldEstado),
			Seguimiento:  fieldString(r.Fields, airtable.FieldSeguimiento),
			FechaEnvio:   fieldTime(r.Fields, airtable.FieldFechaEnvio),
			CreatedAt:    r.CreatedTime,
		})
	}
	return out, nil
}

func (c *Client) ListRegistros(ctx context.Context) ([]*models.Registro, error) {
	recs, err := c.listAll(ctx, c.registrosTable)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Registro, 0, len(recs))
	for _, r := range recs {
		out = append(out, &models.Registro{
			ID:          r.ID,
			Numero:      fieldString(r.Fields, airtable.FieldNumero),
			Cliente:     fieldString(r.Fields, airtable.FieldCliente),
			Asunto:      fieldString(r.Fields, airtable.FieldAsunto),
			Estado:      fieldString(r.Fields, airtable.FieldEstado),
			Seguimiento: fieldString(r.Fields, airtable.FieldSeguimiento),
			FechaEnvio:  fieldTime(r.Fields, airtable.FieldFechaEnvio),
			Cita:        fieldTime(r.Fields, airtable.FieldCita),
			CreatedAt:   r.CreatedTime,
		})
	}
	return out, nil
}

// listAll крутит пагинацию Airtable (offset в query) до конца таблицы.
func (c *Client) listAll(ctx context.Context, table string) ([]record, error) {
	var all []record
	offset := ""
	for {
		u, err := url.Parse(c.baseURL)
		if err != nil {
			return nil, errors.Wrap(err, "parse base url")
		}
		u.Path = fmt.Sprintf("/v0/%s/%s", c.baseID, table)
		q := u.Query()
		q.Set("pageSize", "100")
		if offset != "" {
			q.Set("offset", offset)
		}
		u.RawQuery = q.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, errors.Wrap(err, "new request")
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpc.Do(req)
		if err != nil {
			return nil, errors.Wrap(err, "do request")
		}

		var page listResp
		err = decode(resp, &page)
		if err != nil {
			return nil, err
		}

		all = append(all, page.Records...)
		if page.Offset == "" {
			return all, nil
		}
		offset = page.Offset
	}
}

func (c *Client) UpdateRecord(ctx context.Context, table, id string, fields models.FieldPatch) error {
	body, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return errors.Wrap(err, "marshal fields")
	}

	u := fmt.Sprintf("%s/v0/%s/%s/%s", c.baseURL, c.baseID, table, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, u, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	return decode(resp, &record{})
}

func (c *Client) CreateRecord(ctx context.Context, table string, fields models.FieldPatch) (string, error) {
	body, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return "", errors.Wrap(err, "marshal fields")
	}

	u := fmt.Sprintf("%s/v0/%s/%s", c.baseURL, c.baseID, table)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "new request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "do request")
	}
	var rec record
	if err := decode(resp, &rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

func decode(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("airtable http %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode")
	}
	return nil
}

func fieldString(fields map[string]any, key string) string {
	if v, ok := fields[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// fieldTime парсит дату поля Airtable: полный RFC3339 или голую дату "2006-01-02".
func fieldTime(fields map[string]any, key string) *time.Time {
	s := fieldString(fields, key)
	if s == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		t = t.UTC()
		return &t
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		t = t.UTC()
		return &t
	}
	return nil
}
