package normalize

// CategoryLabels maps WithSecure detection category codes to display labels.
var CategoryLabels = map[string]string{
	"ANOMALY":                     "Anomalía",
	"ABNORMAL_FILE_ACCESSES":      "Accesos anormales al archivo",
	"ABNORMAL_NETWORK_CONNECTION": "Conexión de red anormal",
	"ABNORMAL_PROCESS_EXECUTION":  "Ejecución anormal del proceso",
	"ABNORMAL_FILE_MODIFICATION":  "Modificación anormal del archivo",
	"ABNORMAL_LIBRARY_OR_MODULE":  "Biblioteca o módulo anormal",
	"CREDENTIAL_THEFT":            "Robo de Credenciales",
	"CC_NETWORK_CONNECTION":       "Conexión de red CC",
	"CHANGING_SECURITY_SETTINGS":  "Cambio de la configuración de seguridad",
	"CHANGING_FILE_VISIBILITY":    "Cambio de visibilidad del archivo",
	"INJECTION_TARGET":            "Destino de inyección",
	"INJECTION":                   "Inyección",
	"LATERAL_MOVEMENT":            "Movimiento Lateral",
	"MALWARE":                     "Malware",
	"PERSISTENCE":                 "Persistencia",
	"PRIVILEGE_ESCALATION":        "Escalamiento de privilegios",
	"RECON_ACTIVITIES":            "Actividades de reconocimiento",
	"SCRIPTING_ABUSE":             "Abuso de scripting",
	"SYSTEM_OR_TOOL_MISUSE":       "Uso incorrecto del sistema o la herramienta",
	"SENSOR_TAMPER":               "Manipulación de sensor",
}

// RiskLabels maps WithSecure risk levels to display labels.
var RiskLabels = map[string]string{
	"CRITICAL": "Crítico",
	"SEVERE":   "Grave",
	"HIGH":     "Alto",
	"MEDIUM":   "Medio",
	"LOW":      "Bajo",
	"INFO":     "Informativo",
}

// Categories maps a scalar or list category value through CategoryLabels.
// Unknown codes and non-string values are kept as they are.
func Categories(v any) any {
	switch t := v.(type) {
	case string:
		return lookup(CategoryLabels, t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			if s, ok := item.(string); ok {
				out[i] = lookup(CategoryLabels, s)
				continue
			}
			out[i] = item
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, s := range t {
			out[i] = lookup(CategoryLabels, s)
		}
		return out
	default:
		return v
	}
}

// Risk maps a scalar risk value through RiskLabels.
func Risk(v any) any {
	if s, ok := v.(string); ok {
		return lookup(RiskLabels, s)
	}
	return v
}

func lookup(table map[string]string, code string) string {
	if label, ok := table[code]; ok {
		return label
	}
	return code
}
