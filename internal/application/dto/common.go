package dto

// ErrorResponse cuerpo de error HTTP.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MessageResponse respuesta de los comandos: mensaje del servidor de inventario y la vista resultante.
type MessageResponse struct {
	Message string       `json:"message"`
	View    OrderViewDTO `json:"view"`
}
