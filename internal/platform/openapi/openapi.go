package openapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Operation describes one documented endpoint. Path uses echo syntax
// (":id"); it is rewritten to OpenAPI templates when the document is built.
type Operation struct {
	Method      string
	Path        string
	Summary     string
	OperationID string
	Tag         string
	Request     string
	Response    string
	Status      int
	Query       []string
}

// Generator builds an OpenAPI 3.0 document for the ventilation API.
type Generator struct {
	version string
	baseURL string
	ops     []Operation
}

// NewGenerator creates a generator for the ventilation endpoints served under
// baseURL.
func NewGenerator(version, baseURL string) *Generator {
	return &Generator{version: version, baseURL: baseURL, ops: ventilationOperations()}
}

func (g *Generator) Operations() []Operation {
	out := make([]Operation, len(g.ops))
	copy(out, g.ops)
	return out
}

func ventilationOperations() []Operation {
	return []Operation{
		{http.MethodPost, "/ventilation/predictions", "Predict ventilator settings", "predict", "calculations", "PredictionRequest", "PredictionResult", http.StatusOK, nil},
		{http.MethodPost, "/ventilation/adjustments/rr", "Adjust respiratory rate toward a desired PaCO2", "adjustRR", "calculations", "RRAdjustment", "RRAdjustmentResult", http.StatusOK, nil},
		{http.MethodPost, "/ventilation/adjustments/tv", "Adjust tidal volume toward a desired PaCO2", "adjustTV", "calculations", "TVAdjustment", "TVAdjustmentResult", http.StatusOK, nil},
		{http.MethodPost, "/ventilation/conversions", "Convert a value between units", "convert", "calculations", "Conversion", "ConversionResult", http.StatusOK, nil},
		{http.MethodGet, "/ventilation/calculations", "List recorded calculations", "listCalculations", "history", "", "CalculationPage", http.StatusOK, []string{"kind", "limit", "offset"}},
		{http.MethodGet, "/ventilation/calculations/:id", "Read a recorded calculation", "getCalculation", "history", "", "CalculationRecord", http.StatusOK, nil},
		{http.MethodPost, "/worksheets", "Create and load a worksheet", "createWorksheet", "worksheets", "WorksheetState", "WorksheetView", http.StatusCreated, nil},
		{http.MethodGet, "/worksheets/:id", "Read a worksheet", "getWorksheet", "worksheets", "", "WorksheetView", http.StatusOK, nil},
		{http.MethodPatch, "/worksheets/:id/fields", "Edit a worksheet field", "editWorksheetField", "worksheets", "FieldEdit", "WorksheetView", http.StatusOK, nil},
		{http.MethodPatch, "/worksheets/:id/units", "Change a worksheet unit selector", "changeWorksheetUnit", "worksheets", "UnitChange", "WorksheetView", http.StatusOK, nil},
		{http.MethodPatch, "/worksheets/:id/selection", "Change tidal volume selection or sex", "changeWorksheetSelection", "worksheets", "WorksheetSelection", "WorksheetView", http.StatusOK, nil},
		{http.MethodDelete, "/worksheets/:id", "Delete a worksheet", "deleteWorksheet", "worksheets", "", "", http.StatusNoContent, nil},
	}
}

// GenerateSpec produces the OpenAPI 3.0 document as a map.
func (g *Generator) GenerateSpec() map[string]interface{} {
	paths := make(map[string]interface{})
	for _, op := range g.ops {
		p := toOpenAPIPath(op.Path)
		item, ok := paths[p].(map[string]interface{})
		if !ok {
			item = make(map[string]interface{})
			paths[p] = item
		}
		item[strings.ToLower(op.Method)] = g.buildOperation(op)
	}

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":       "Ventilator Settings API",
			"version":     g.version,
			"description": "Ideal body weight, tidal volume, minute ventilation and respiratory rate calculations",
		},
		"servers": []map[string]string{
			{"url": g.baseURL},
		},
		"paths": paths,
		"components": map[string]interface{}{
			"schemas": buildComponentSchemas(),
			"securitySchemes": map[string]interface{}{
				"bearerAuth": map[string]string{"type": "http", "scheme": "bearer", "bearerFormat": "JWT"},
			},
		},
		"security": []map[string][]string{{"bearerAuth": {}}},
	}
}

func (g *Generator) buildOperation(op Operation) map[string]interface{} {
	out := map[string]interface{}{
		"summary":     op.Summary,
		"operationId": op.OperationID,
		"tags":        []string{op.Tag},
	}

	var params []map[string]interface{}
	if strings.Contains(op.Path, ":id") {
		params = append(params, map[string]interface{}{
			"name": "id", "in": "path", "required": true,
			"schema": map[string]string{"type": "string", "format": "uuid"},
		})
	}
	for _, q := range op.Query {
		schema := map[string]string{"type": "integer"}
		if q == "kind" {
			schema = map[string]string{"type": "string"}
		}
		params = append(params, map[string]interface{}{"name": q, "in": "query", "schema": schema})
	}
	if len(params) > 0 {
		out["parameters"] = params
	}

	if op.Request != "" {
		out["requestBody"] = map[string]interface{}{
			"required": true,
			"content": map[string]interface{}{
				"application/json": map[string]interface{}{
					"schema": ref(op.Request),
				},
			},
		}
	}

	responses := map[string]interface{}{
		"400": buildResponse("Invalid input", "Error"),
		"401": buildResponse("Missing or invalid token", "Error"),
		"403": buildResponse("Role not permitted", "Error"),
	}
	if op.Response == "" {
		responses[statusKey(op.Status)] = map[string]interface{}{"description": http.StatusText(op.Status)}
	} else {
		responses[statusKey(op.Status)] = buildResponse(http.StatusText(op.Status), op.Response)
	}
	if strings.Contains(op.Path, ":id") {
		responses["404"] = buildResponse("Not Found", "Error")
	}
	out["responses"] = responses
	return out
}

func toOpenAPIPath(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		if strings.HasPrefix(s, ":") {
			parts[i] = "{" + s[1:] + "}"
		}
	}
	return strings.Join(parts, "/")
}

func statusKey(code int) string {
	switch code {
	case http.StatusCreated:
		return "201"
	case http.StatusNoContent:
		return "204"
	}
	return "200"
}

func ref(name string) map[string]interface{} {
	return map[string]interface{}{"$ref": "#/components/schemas/" + name}
}

func buildResponse(description, schema string) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": ref(schema),
			},
		},
	}
}

func object(props map[string]interface{}, required ...string) map[string]interface{} {
	out := map[string]interface{}{"type": "object", "properties": props}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func number() map[string]interface{} { return map[string]interface{}{"type": "number"} }

func str() map[string]interface{} { return map[string]interface{}{"type": "string"} }

func enum(values ...string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "enum": values}
}

// buildComponentSchemas mirrors the JSON bodies of the ventilation handlers.
func buildComponentSchemas() map[string]interface{} {
	unit := enum("cm", "in", "kg", "lb", "mL", "L")
	option := enum("tvoption1", "tvoption2", "tvoption3", "tvoption4")
	sex := enum("M", "F")

	display := object(map[string]interface{}{
		"ibw_kg":            str(),
		"tv_6mlkg":          str(),
		"tv_7mlkg":          str(),
		"tv_8mlkg":          str(),
		"bsa_m2":            str(),
		"predicted_mv_lmin": str(),
		"predicted_rr_bpm":  str(),
		"warnings":          map[string]interface{}{"type": "array", "items": str()},
	})

	return map[string]interface{}{
		"Measurement": object(map[string]interface{}{"value": number(), "unit": unit}, "value"),
		"PredictionRequest": object(map[string]interface{}{
			"height": ref("Measurement"),
			"weight": ref("Measurement"),
			"sex":    sex,
			"tv_selection": object(map[string]interface{}{
				"option":    option,
				"custom_ml": number(),
			}),
		}, "height", "weight", "sex"),
		"PredictionDisplay": display,
		"DerivedQuantities": object(map[string]interface{}{
			"height_cm":         number(),
			"height_in":         number(),
			"weight_kg":         number(),
			"ibw_kg":            number(),
			"tidal_volumes":     object(map[string]interface{}{"valid": map[string]string{"type": "boolean"}, "tv_6mlkg": number(), "tv_7mlkg": number(), "tv_8mlkg": number()}),
			"selected_tv_ml":    number(),
			"bsa_m2":            number(),
			"predicted_mv_lmin": number(),
			"predicted_rr_bpm":  number(),
		}),
		"PredictionResult": object(map[string]interface{}{
			"calculation_id": map[string]string{"type": "string", "format": "uuid"},
			"derived":        ref("DerivedQuantities"),
			"display":        ref("PredictionDisplay"),
		}),
		"RRAdjustment": object(map[string]interface{}{
			"current_rr":    number(),
			"current_paco2": number(),
			"desired_paco2": number(),
		}),
		"RRAdjustmentResult": object(map[string]interface{}{
			"calculation_id":  map[string]string{"type": "string", "format": "uuid"},
			"adjusted_rr_bpm": number(),
			"display":         str(),
		}),
		"TVAdjustment": object(map[string]interface{}{
			"current_tv":    number(),
			"input_unit":    enum("mL", "L"),
			"current_paco2": number(),
			"desired_paco2": number(),
			"output_unit":   enum("mL", "L"),
		}),
		"TVAdjustmentResult": object(map[string]interface{}{
			"calculation_id": map[string]string{"type": "string", "format": "uuid"},
			"adjusted_tv":    number(),
			"unit":           enum("mL", "L"),
			"display":        str(),
		}),
		"Conversion":       object(map[string]interface{}{"value": number(), "from": unit, "to": unit}, "value", "from", "to"),
		"ConversionResult": object(map[string]interface{}{"value": number(), "unit": unit, "display": str()}),
		"CalculationRecord": object(map[string]interface{}{
			"id":           map[string]string{"type": "string", "format": "uuid"},
			"kind":         enum("prediction", "rr_adjustment", "tv_adjustment"),
			"inputs":       map[string]string{"type": "object"},
			"outputs":      map[string]string{"type": "object"},
			"requested_by": str(),
			"created_at":   map[string]string{"type": "string", "format": "date-time"},
		}),
		"CalculationPage": object(map[string]interface{}{
			"data":     map[string]interface{}{"type": "array", "items": ref("CalculationRecord")},
			"total":    map[string]string{"type": "integer"},
			"limit":    map[string]string{"type": "integer"},
			"offset":   map[string]string{"type": "integer"},
			"has_more": map[string]string{"type": "boolean"},
			"links":    object(map[string]interface{}{"next": str(), "previous": str()}),
		}),
		"WorksheetState": object(map[string]interface{}{
			"fields":             map[string]interface{}{"type": "object", "additionalProperties": str()},
			"height_unit":        enum("cm", "in"),
			"weight_unit":        enum("kg", "lb"),
			"sex":                sex,
			"tv_selection":       option,
			"tv_adjust_in_unit":  enum("mL", "L"),
			"tv_adjust_out_unit": enum("mL", "L"),
		}),
		"WorksheetView": object(map[string]interface{}{
			"id":         map[string]string{"type": "string", "format": "uuid"},
			"state":      ref("WorksheetState"),
			"outputs":    map[string]interface{}{"allOf": []interface{}{ref("PredictionDisplay"), object(map[string]interface{}{"adjusted_rr_bpm": str(), "adjusted_tv": str(), "adjusted_tv_unit": enum("mL", "L")})}},
			"derived":    ref("DerivedQuantities"),
			"updated_at": map[string]string{"type": "string", "format": "date-time"},
		}),
		"FieldEdit":          object(map[string]interface{}{"field": str(), "value": str()}, "field"),
		"UnitChange":         object(map[string]interface{}{"selector": enum("height_unit", "weight_unit", "tv_adjust_in_unit", "tv_adjust_out_unit"), "unit": unit}, "selector", "unit"),
		"WorksheetSelection": object(map[string]interface{}{"tv_selection": option, "sex": sex}),
		"Error":              object(map[string]interface{}{"message": str()}),
	}
}

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Ventilator Settings API - Swagger UI</title>
  <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" >
  <style>
    html { box-sizing: border-box; overflow-y: scroll; }
    *, *:before, *:after { box-sizing: inherit; }
    body { margin: 0; background: #fafafa; }
  </style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: "/api/openapi.json",
      dom_id: '#swagger-ui',
      deepLinking: true,
      presets: [
        SwaggerUIBundle.presets.apis,
        SwaggerUIBundle.SwaggerUIStandalonePreset
      ],
      layout: "BaseLayout"
    })
  </script>
</body>
</html>`

// RegisterRoutes registers the OpenAPI endpoints.
func (g *Generator) RegisterRoutes(apiGroup *echo.Group) {
	apiGroup.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, g.GenerateSpec())
	})
	apiGroup.GET("/docs", func(c echo.Context) error {
		return c.HTML(http.StatusOK, swaggerUIHTML)
	})
}
