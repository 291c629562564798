// SPDX-License-Identifier: MIT

// Package templates resolves outbound message templates: campaign texts
// with an image locator, appointment confirmations and payment-review
// notices.
package templates

import (
	"fmt"
	"time"
)

// Params feeds placeholder values into a template.
type Params struct {
	Nombre string
	Fecha  string
	Hora   string
	// Image overrides the template's image locator when set.
	Image string
}

// Rendered is a resolved template: the message text plus an optional image
// locator for the image source to resolve.
type Rendered struct {
	Text         string
	ImageLocator string
}

// Provider renders the built-in template set.
type Provider struct {
	now func() time.Time
}

// NewProvider creates a template provider.
func NewProvider() *Provider {
	return &Provider{now: time.Now}
}

// Resolve renders a campaign template. Unknown IDs fall back to the
// default automatic-message template.
func (p *Provider) Resolve(templateID string, params Params) Rendered {
	switch templateID {
	case "cita_gratis":
		return Rendered{
			Text: fmt.Sprintf(`✨ ¡Hola %s! Te saluda Digimedia. 💻🚀

Potencia tu presencia online con una página web profesional y personalizada para tu marca.

Te ayudamos con:

  🌐 Diseño web *moderno y a tu medida*.
  ⚡ Desarrollo optimizado y veloz.
  📱 100%% adaptable a móviles.
  🎯 SEO listo para posicionarte en Google.
  💰 Inversión inteligente que multiplica tus ventas.

  👉 Todo en un solo servicio creado para hacer crecer tu negocio sin límites.

Tu negocio no puede esperar más para crecer.

Hazlo digital con *DigiMedia.*`, params.Nombre),
			ImageLocator: "imagenes/Flyer.jpg",
		}
	default:
		return Rendered{
			Text:         fmt.Sprintf("Hola %s, este es un mensaje automático.", params.Nombre),
			ImageLocator: "imagenes/default.jpg",
		}
	}
}

// ResolveConfirmation renders an appointment confirmation. The image
// locator comes from the caller via Params.Image.
func (p *Provider) ResolveConfirmation(templateID string, params Params) Rendered {
	switch templateID {
	case "cita_gratis":
		return Rendered{
			Text: fmt.Sprintf(`¡Hola 👋

✅ Tu primera cita GRATUITA ha sido confirmada:

📅 Fecha: %s
🕐 Hora: %s
👨‍⚕️ Especialista: %s

🎉 ¡Recuerda que tu primera consulta es completamente GRATIS!

Si tienes alguna consulta, no dudes en contactarnos.

¡Te esperamos! 🌟`, params.Fecha, params.Hora, params.Nombre),
			ImageLocator: params.Image,
		}
	default:
		return Rendered{
			Text:         fmt.Sprintf("Hola %s, este es un mensaje automático.", params.Nombre),
			ImageLocator: "imagenes/Flyer.jpg",
		}
	}
}

// Acceptance renders the approved payment-review notice, with an optional
// reviewer comment.
func (p *Provider) Acceptance(comment string) string {
	return fmt.Sprintf(`✅ COMPROBANTE APROBADO ✅

🎉 ¡Excelente! Tu comprobante de pago ha sido revisado y aprobado.

📋 Estado de la revisión:
   - ✅ APROBADO
   - 📅 Fecha de revisión: %s
   - 🕐 Hora: %s

%s🔒 Tu información está segura con nosotros.

Si tienes alguna pregunta sobre tu pago, no dudes en contactarnos.

¡Gracias por tu paciencia! 🌟`, p.reviewDate(), p.reviewTime(), reviewerComment(comment))
}

// Rejection renders the rejected payment-review notice, with an optional
// reviewer comment.
func (p *Provider) Rejection(comment string) string {
	return fmt.Sprintf(`❌ COMPROBANTE RECHAZADO ❌

⚠️ Tu comprobante de pago no pudo ser aprobado.

📋 Estado de la revisión:
   - ❌ RECHAZADO
   - 📅 Fecha de revisión: %s
   - 🕐 Hora: %s

%s🔄 Para resolver este problema:

1. 📸 Sube una nueva foto del comprobante
2. 🔍 Asegúrate de que se vea claramente:
   - Número de referencia
   - Monto pagado
   - Fecha del pago
   - Nombre del remitente
3. 📱 La imagen debe estar nítida y completa

📞 Si necesitas ayuda, contáctanos inmediatamente.

¡Estamos aquí para ayudarte a resolverlo! 🤝`, p.reviewDate(), p.reviewTime(), reviewerComment(comment))
}

func (p *Provider) reviewDate() string {
	return p.now().Format("02/01/2006")
}

func (p *Provider) reviewTime() string {
	return p.now().Format("15:04:05")
}

func reviewerComment(comment string) string {
	if comment == "" {
		return ""
	}
	return fmt.Sprintf("💬 Comentario del administrador:\n%q\n\n", comment)
}
