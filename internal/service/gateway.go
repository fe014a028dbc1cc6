package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"traffic-finance-api/internal/model"
)

// PaymentGatewayClient talks SOAP to the municipal payment processor used
// for debt settlement. Sessions are created with the full amount owed and
// verified after the citizen returns from the hosted payment page.
type PaymentGatewayClient struct {
	httpClient *http.Client
	baseURL    string
	storeID    string
	secret     string
	logger     *logrus.Logger
}

func NewPaymentGatewayClient(baseURL, storeID, secret string, logger *logrus.Logger) *PaymentGatewayClient {
	return &PaymentGatewayClient{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: baseURL,
		storeID: storeID,
		secret:  secret,
		logger:  logger,
	}
}

func (c *PaymentGatewayClient) buildCreateSessionRequest(debtID uuid.UUID, amount int64, method string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
        <soap12:Envelope xmlns:soap12="http://www.w3.org/2003/05/soap-envelope">
            <soap12:Body>
                <CreateSession xmlns="http://gateway.municipal-payments.org/">
                    <storeId>%s</storeId>
                    <secret>%s</secret>
                    <orderId>%s</orderId>
                    <amount>%d</amount>
                    <method>%s</method>
                </CreateSession>
            </soap12:Body>
        </soap12:Envelope>`, c.storeID, c.secret, debtID, amount, method)
}

func (c *PaymentGatewayClient) buildVerifySessionRequest(sessionID string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
        <soap12:Envelope xmlns:soap12="http://www.w3.org/2003/05/soap-envelope">
            <soap12:Body>
                <VerifySession xmlns="http://gateway.municipal-payments.org/">
                    <storeId>%s</storeId>
                    <secret>%s</secret>
                    <sessionId>%s</sessionId>
                </VerifySession>
            </soap12:Body>
        </soap12:Envelope>`, c.storeID, c.secret, sessionID)
}

func (c *PaymentGatewayClient) send(ctx context.Context, action, soapRequest string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewBufferString(soapRequest))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/soap+xml; charset=utf-8")
	req.Header.Set("SOAPAction", "http://gateway.municipal-payments.org/"+action)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	return rawBody, nil
}

func parseCreateSessionResponse(rawBody []byte) (*model.DebtPaymentSession, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(rawBody); err != nil {
		return nil, fmt.Errorf("failed to parse gateway XML: %w", err)
	}

	result := doc.FindElement("//CreateSessionResult")
	if result == nil {
		return nil, errors.New("gateway response has no CreateSessionResult element")
	}

	sessionElement := result.FindElement("./SessionId")
	urlElement := result.FindElement("./RedirectUrl")
	amountElement := result.FindElement("./Amount")
	if sessionElement == nil || urlElement == nil || amountElement == nil {
		return nil, errors.New("gateway response is missing session fields")
	}

	amount, err := strconv.ParseInt(amountElement.Text(), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse session amount: %w", err)
	}

	return &model.DebtPaymentSession{
		SessionID:   sessionElement.Text(),
		RedirectURL: urlElement.Text(),
		Amount:      amount,
	}, nil
}

func parseVerifySessionResponse(rawBody []byte) (int64, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(rawBody); err != nil {
		return 0, fmt.Errorf("failed to parse gateway XML: %w", err)
	}

	result := doc.FindElement("//VerifySessionResult")
	if result == nil {
		return 0, errors.New("gateway response has no VerifySessionResult element")
	}

	statusElement := result.FindElement("./Status")
	if statusElement == nil {
		return 0, errors.New("gateway response is missing the Status element")
	}
	if statusElement.Text() != "COMPLETED" {
		return 0, fmt.Errorf("payment session is %s", statusElement.Text())
	}

	amountElement := result.FindElement("./PaidAmount")
	if amountElement == nil {
		return 0, errors.New("gateway response is missing the PaidAmount element")
	}

	amount, err := strconv.ParseInt(amountElement.Text(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse paid amount: %w", err)
	}

	return amount, nil
}

// CreateSession registers a payment of the given amount with the gateway and
// returns the hosted page the citizen should be redirected to.
func (c *PaymentGatewayClient) CreateSession(ctx context.Context, debtID uuid.UUID, amount int64, method string) (*model.DebtPaymentSession, error) {
	c.logger.WithFields(logrus.Fields{
		"debt_id": debtID,
		"amount":  amount,
		"method":  method,
	}).Info("Creating payment gateway session")

	rawBody, err := c.send(ctx, "CreateSession", c.buildCreateSessionRequest(debtID, amount, method))
	if err != nil {
		c.logger.WithError(err).Error("Gateway session creation failed")
		return nil, err
	}

	session, err := parseCreateSessionResponse(rawBody)
	if err != nil {
		c.logger.WithError(err).Error("Failed to parse gateway session response")
		return nil, err
	}

	c.logger.WithField("session_id", session.SessionID).Info("Gateway session created")
	return session, nil
}

// VerifySession asks the gateway for the final state of a session and
// returns the amount actually collected.
func (c *PaymentGatewayClient) VerifySession(ctx context.Context, sessionID string) (int64, error) {
	c.logger.WithField("session_id", sessionID).Info("Verifying payment gateway session")

	rawBody, err := c.send(ctx, "VerifySession", c.buildVerifySessionRequest(sessionID))
	if err != nil {
		c.logger.WithError(err).Error("Gateway session verification failed")
		return 0, err
	}

	amount, err := parseVerifySessionResponse(rawBody)
	if err != nil {
		c.logger.WithError(err).Error("Failed to parse gateway verification response")
		return 0, err
	}

	c.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"amount":     amount,
	}).Info("Payment verified by gateway")
	return amount, nil
}
