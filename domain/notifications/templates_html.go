package notifications

// Template names accepted in the email-notification job payload.
const (
	TemplateQuoteReady    = "quote-ready"
	TemplateQuoteAccepted = "quote-accepted"
	TemplateQuoteExpired  = "quote-expired"
	TemplateOrderShipped  = "order-shipped"
)

var templateSources = map[string]string{
	TemplateQuoteReady: `<!DOCTYPE html>
<html>
<head>
  <style>
    body { font-family: Arial, sans-serif; color: #333; }
    .container { max-width: 600px; margin: 0 auto; padding: 20px; }
    .header { background-color: #f8f9fa; padding: 20px; text-align: center; }
    .content { padding: 20px; }
    .button { display: inline-block; padding: 12px 24px; background-color: #007bff; color: white; text-decoration: none; border-radius: 4px; }
    .footer { margin-top: 40px; padding-top: 20px; border-top: 1px solid #e9ecef; text-align: center; color: #6c757d; font-size: 14px; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">
      <h1>Your Quote is Ready!</h1>
    </div>
    <div class="content">
      <p>Hi {{recipientName}},</p>
      <p>Great news! Your quote #{{quoteNumber}} is ready for review.</p>
      <p><strong>Quote Summary:</strong></p>
      <ul>
        <li>Items: {{itemCount}}</li>
        <li>Total: {{currency}} {{total}}</li>
        <li>Valid until: {{validUntil}}</li>
      </ul>
      <p>Click the button below to view and accept your quote:</p>
      <p style="text-align: center;">
        <a href="{{quoteUrl}}" class="button">View Quote</a>
      </p>
      <p>If you have any questions, feel free to contact us at {{supportEmail}}.</p>
      <p>Best regards,<br>The Fabworks Team</p>
    </div>
    <div class="footer">
      <p>&copy; {{year}} Fabworks. All rights reserved.</p>
      <p>This email was sent to {{recipientEmail}}</p>
    </div>
  </div>
</body>
</html>`,
	TemplateQuoteAccepted: `<!DOCTYPE html>
<html>
<head>
  <style>
    body { font-family: Arial, sans-serif; color: #333; }
    .container { max-width: 600px; margin: 0 auto; padding: 20px; }
    .header { background-color: #28a745; color: white; padding: 20px; text-align: center; }
    .content { padding: 20px; }
    .order-details { background-color: #f8f9fa; padding: 15px; border-radius: 4px; margin: 20px 0; }
    .footer { margin-top: 40px; padding-top: 20px; border-top: 1px solid #e9ecef; text-align: center; color: #6c757d; font-size: 14px; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">
      <h1>Order Confirmed!</h1>
    </div>
    <div class="content">
      <p>Hi {{recipientName}},</p>
      <p>Thank you for your order! We've received your payment and your order is now being processed.</p>
      <div class="order-details">
        <h3>Order Details:</h3>
        <p><strong>Order Number:</strong> {{orderNumber}}</p>
        <p><strong>Quote Number:</strong> {{quoteNumber}}</p>
        <p><strong>Total Paid:</strong> {{currency}} {{totalPaid}}</p>
        <p><strong>Estimated Delivery:</strong> {{estimatedDelivery}}</p>
      </div>
      <p>We'll send you another email when your order ships with tracking information.</p>
      <p>If you have any questions about your order, please contact us at {{supportEmail}}.</p>
      <p>Thank you for choosing Fabworks!</p>
      <p>Best regards,<br>The Fabworks Team</p>
    </div>
    <div class="footer">
      <p>&copy; {{year}} Fabworks. All rights reserved.</p>
    </div>
  </div>
</body>
</html>`,
	TemplateQuoteExpired: `<!DOCTYPE html>
<html>
<head>
  <style>
    body { font-family: Arial, sans-serif; color: #333; }
    .container { max-width: 600px; margin: 0 auto; padding: 20px; }
    .header { background-color: #ffc107; color: #333; padding: 20px; text-align: center; }
    .content { padding: 20px; }
    .button { display: inline-block; padding: 12px 24px; background-color: #007bff; color: white; text-decoration: none; border-radius: 4px; }
    .footer { margin-top: 40px; padding-top: 20px; border-top: 1px solid #e9ecef; text-align: center; color: #6c757d; font-size: 14px; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">
      <h1>Your Quote Has Expired</h1>
    </div>
    <div class="content">
      <p>Hi {{recipientName}},</p>
      <p>Your quote #{{quoteNumber}} has expired as of {{expirationDate}}.</p>
      <p>Don't worry! You can easily request a new quote with updated pricing.</p>
      <p style="text-align: center;">
        <a href="{{newQuoteUrl}}" class="button">Request New Quote</a>
      </p>
      <p>If you need assistance or have questions, please contact us at {{supportEmail}}.</p>
      <p>Best regards,<br>The Fabworks Team</p>
    </div>
    <div class="footer">
      <p>&copy; {{year}} Fabworks. All rights reserved.</p>
    </div>
  </div>
</body>
</html>`,
	TemplateOrderShipped: `<!DOCTYPE html>
<html>
<head>
  <style>
    body { font-family: Arial, sans-serif; color: #333; }
    .container { max-width: 600px; margin: 0 auto; padding: 20px; }
    .header { background-color: #17a2b8; color: white; padding: 20px; text-align: center; }
    .content { padding: 20px; }
    .tracking-info { background-color: #f8f9fa; padding: 15px; border-radius: 4px; margin: 20px 0; }
    .button { display: inline-block; padding: 12px 24px; background-color: #007bff; color: white; text-decoration: none; border-radius: 4px; }
    .footer { margin-top: 40px; padding-top: 20px; border-top: 1px solid #e9ecef; text-align: center; color: #6c757d; font-size: 14px; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">
      <h1>Your Order Has Shipped!</h1>
    </div>
    <div class="content">
      <p>Hi {{recipientName}},</p>
      <p>Great news! Your order #{{orderNumber}} has been shipped and is on its way to you.</p>
      <div class="tracking-info">
        <h3>Shipping Information:</h3>
        <p><strong>Carrier:</strong> {{carrier}}</p>
        <p><strong>Tracking Number:</strong> {{trackingNumber}}</p>
        <p><strong>Estimated Delivery:</strong> {{estimatedDelivery}}</p>
      </div>
      <p style="text-align: center;">
        <a href="{{trackingUrl}}" class="button">Track Your Package</a>
      </p>
      <p>If you have any questions about your shipment, please contact us at {{supportEmail}}.</p>
      <p>Thank you for your business!</p>
      <p>Best regards,<br>The Fabworks Team</p>
    </div>
    <div class="footer">
      <p>&copy; {{year}} Fabworks. All rights reserved.</p>
    </div>
  </div>
</body>
</html>`,
}
